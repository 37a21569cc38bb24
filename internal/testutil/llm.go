package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ChatScript configures a ChatServer response.
type ChatScript struct {
	// Reply is the assistant content returned for chat completions.
	Reply string

	// Status, when non-zero, is returned instead of a completion
	// (e.g. 500 to simulate a router outage).
	Status int

	// EmptyChoices returns a well-formed completion with no choices.
	EmptyChoices bool
}

// ChatServer is an httptest server speaking just enough of the
// OpenAI-compatible wire protocol for the ai.Client: POST /chat/completions
// and POST /embeddings. Embeddings are deterministic (WordEmbedder) so
// retrieval behaves consistently across a test.
type ChatServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	script   ChatScript
	requests int
	embedder WordEmbedder
}

// NewChatServer starts a scripted router. The server is closed automatically
// when the test finishes.
func NewChatServer(t *testing.T, script ChatScript) *ChatServer {
	t.Helper()

	cs := &ChatServer{script: script}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", cs.completions)
	mux.HandleFunc("POST /embeddings", cs.embeddings)
	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Server.Close)
	return cs
}

// URL returns the base URL to point ai.Config.BaseURL at.
func (cs *ChatServer) URL() string { return cs.Server.URL }

// Requests returns the number of chat-completion requests received.
func (cs *ChatServer) Requests() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.requests
}

// SetScript replaces the scripted behavior mid-test.
func (cs *ChatServer) SetScript(script ChatScript) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.script = script
}

func (cs *ChatServer) completions(w http.ResponseWriter, _ *http.Request) {
	cs.mu.Lock()
	cs.requests++
	script := cs.script
	cs.mu.Unlock()

	if script.Status != 0 {
		http.Error(w, "scripted failure", script.Status)
		return
	}

	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type choice struct {
		Index   int     `json:"index"`
		Message message `json:"message"`
	}

	choices := []choice{}
	if !script.EmptyChoices {
		choices = append(choices, choice{Message: message{Role: "assistant", Content: script.Reply}})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"model":   "test-model",
		"choices": choices,
	})
}

func (cs *ChatServer) embeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Input) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	type datum struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	}

	data := make([]datum, 0, len(req.Input))
	for i, text := range req.Input {
		cs.mu.Lock()
		vec, _ := cs.embedder.Embed(context.Background(), text)
		cs.mu.Unlock()
		f64 := make([]float64, len(vec))
		for j, v := range vec {
			f64[j] = float64(v)
		}
		data = append(data, datum{Object: "embedding", Index: i, Embedding: f64})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  "test-embedding-model",
		"data":   data,
	})
}
