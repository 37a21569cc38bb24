// Package rag implements retrieval-augmented generation: documents are
// chunked and embedded into the vector store, queries retrieve the
// nearest chunks, and a hosted model produces the answer with the
// retrieved text as context. Every query path has a deterministic
// fallback, so a dead model endpoint degrades the answer instead of the
// service.
package rag

import (
	"context"
	"fmt"

	"github.com/ragline/ragline/internal/ai"
	"github.com/ragline/ragline/internal/knowledge"
	"github.com/ragline/ragline/internal/log"
)

// GlobalCollection is the shared knowledge base behind the HTTP API,
// Slack and voice channels.
const GlobalCollection = "documents"

// DefaultTopK is how many chunks a query retrieves.
const DefaultTopK = 5

// Options tune chunking and retrieval. Zero values fall back to
// defaults.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap <= 0 {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	return o
}

// CollectionStats summarizes the shared knowledge base.
type CollectionStats struct {
	TotalDocuments int    `json:"total_documents"`
	CollectionName string `json:"collection_name"`
}

// Engine answers questions from the shared knowledge base.
type Engine struct {
	store  *knowledge.Store
	chat   ai.ChatClient
	logger log.Logger
	opts   Options
}

// NewEngine creates the shared-knowledge-base engine, provisioning the
// collection if it does not exist yet.
func NewEngine(store *knowledge.Store, chat ai.ChatClient, logger log.Logger, opts Options) (*Engine, error) {
	if err := store.EnsureCollection(GlobalCollection); err != nil {
		return nil, err
	}
	return &Engine{store: store, chat: chat, logger: logger, opts: opts.withDefaults()}, nil
}

// AddDocument chunks and stores text in the shared collection, returning
// the number of chunks written. Chunk IDs derive from the filename
// metadata, so re-uploading a file replaces its chunks.
func (e *Engine) AddDocument(ctx context.Context, text string, metadata map[string]string) (int, error) {
	docs, err := chunkDocuments("", text, metadata, e.opts)
	if err != nil {
		return 0, err
	}
	if err := e.store.Add(ctx, GlobalCollection, docs); err != nil {
		return 0, err
	}
	e.logger.Info("added document", "collection", GlobalCollection, "chunks", len(docs))
	return len(docs), nil
}

// AddPDF extracts the text of a PDF and stores it like AddDocument.
func (e *Engine) AddPDF(ctx context.Context, content []byte, filename string) (int, error) {
	text, err := ExtractPDFText(content)
	if err != nil {
		return 0, err
	}
	return e.AddDocument(ctx, text, map[string]string{"filename": filename, "type": "pdf"})
}

// Search returns the raw retrieval hits for a query, without generation.
func (e *Engine) Search(ctx context.Context, query string) ([]knowledge.Result, error) {
	return e.store.Query(ctx, GlobalCollection, query, knowledge.WithTopK(e.opts.TopK))
}

// Query answers a question from the shared knowledge base. An empty
// knowledge base yields a fixed "nothing found" answer; a failed model
// call yields a raw excerpt of the retrieved chunks. Neither is an
// error.
func (e *Engine) Query(ctx context.Context, question string) (string, error) {
	hits, err := e.Search(ctx, question)
	if err != nil {
		return "", fmt.Errorf("searching knowledge base: %w", err)
	}
	if len(hits) == 0 {
		return noGlobalResults, nil
	}

	answer, err := e.chat.Chat(ctx, systemPrompt(joinContext(hits)), question)
	if err != nil {
		e.logger.Warn("model call failed, using excerpt fallback", "error", err)
		return excerptFallback(question, hits), nil
	}
	return answer, nil
}

// Stats reports the size of the shared knowledge base.
func (e *Engine) Stats() CollectionStats {
	return CollectionStats{
		TotalDocuments: e.store.Count(GlobalCollection),
		CollectionName: GlobalCollection,
	}
}

// chunkDocuments turns raw text into store documents. IDs follow
// "<doc>_chunk_<i>", prefixed with the owner for per-user documents so
// IDs stay unique across users sharing a filename.
func chunkDocuments(owner, text string, metadata map[string]string, opts Options) ([]knowledge.Document, error) {
	chunks := Chunk(text, opts.ChunkSize, opts.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document contains no text")
	}

	docID := metadata["filename"]
	if docID == "" {
		docID = "doc"
	}

	docs := make([]knowledge.Document, 0, len(chunks))
	for i, chunk := range chunks {
		meta := make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
		id := fmt.Sprintf("%s_chunk_%d", docID, i)
		if owner != "" {
			id = fmt.Sprintf("%s_%s_chunk_%d", owner, docID, i)
		}
		docs = append(docs, knowledge.Document{ID: id, Content: chunk, Metadata: meta})
	}
	return docs, nil
}
