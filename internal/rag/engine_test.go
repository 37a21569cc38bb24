package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/knowledge"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/testutil"
)

// scriptedChat returns a canned reply or error and records the prompts
// it was called with.
type scriptedChat struct {
	reply string
	err   error

	calls      int
	lastSystem string
	lastUser   string
}

func (c *scriptedChat) Chat(_ context.Context, system, user string) (string, error) {
	c.calls++
	c.lastSystem = system
	c.lastUser = user
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func newTestEngine(t *testing.T, chat *scriptedChat) (*Engine, *knowledge.Store) {
	t.Helper()
	store := knowledge.NewInMemory(&testutil.WordEmbedder{}, log.NewNop())
	engine, err := NewEngine(store, chat, log.NewNop(), Options{ChunkSize: 20, ChunkOverlap: 5})
	require.NoError(t, err)
	return engine, store
}

func TestAddDocument(t *testing.T) {
	engine, store := newTestEngine(t, &scriptedChat{})
	ctx := context.Background()

	n, err := engine.AddDocument(ctx, words(50), map[string]string{"filename": "notes.txt"})
	require.NoError(t, err)

	// 50 words, window 20, step 15.
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, store.Count(GlobalCollection))

	hits, err := engine.Search(ctx, "w0 w1 w2")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.True(t, strings.HasPrefix(hits[0].Document.ID, "notes.txt_chunk_"))
	assert.Equal(t, "notes.txt", hits[0].Document.Metadata["filename"])
}

func TestAddDocument_DefaultDocID(t *testing.T) {
	engine, _ := newTestEngine(t, &scriptedChat{})

	n, err := engine.AddDocument(context.Background(), "some short text", nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	hits, err := engine.Search(context.Background(), "some short text")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc_chunk_0", hits[0].Document.ID)
}

func TestAddDocument_Empty(t *testing.T) {
	engine, _ := newTestEngine(t, &scriptedChat{})

	_, err := engine.AddDocument(context.Background(), "   ", nil)
	require.Error(t, err)
}

func TestAddPDF_Invalid(t *testing.T) {
	engine, _ := newTestEngine(t, &scriptedChat{})

	_, err := engine.AddPDF(context.Background(), []byte("not a pdf"), "broken.pdf")
	require.Error(t, err)
}

func TestQuery_EmptyKnowledgeBase(t *testing.T) {
	chat := &scriptedChat{reply: "should not be called"}
	engine, _ := newTestEngine(t, chat)

	answer, err := engine.Query(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, noGlobalResults, answer)
	assert.Zero(t, chat.calls, "no model call without retrieval hits")
}

func TestQuery_ModelAnswer(t *testing.T) {
	chat := &scriptedChat{reply: "Machine learning trains models from data."}
	engine, _ := newTestEngine(t, chat)
	ctx := context.Background()

	_, err := engine.AddDocument(ctx, "machine learning trains models from data using gradient descent",
		map[string]string{"filename": "ml.txt"})
	require.NoError(t, err)

	answer, err := engine.Query(ctx, "what is machine learning")
	require.NoError(t, err)

	assert.Equal(t, chat.reply, answer)
	assert.Equal(t, 1, chat.calls, "exactly one completion per query")
	assert.Equal(t, "what is machine learning", chat.lastUser)
	assert.Contains(t, chat.lastSystem, "machine learning trains models", "retrieved chunk goes into the system prompt")
	assert.Contains(t, chat.lastSystem, "Answer based only on the provided context")
}

func TestQuery_ModelFailureFallsBackToExcerpt(t *testing.T) {
	chat := &scriptedChat{err: errors.New("router down")}
	engine, _ := newTestEngine(t, chat)
	ctx := context.Background()

	_, err := engine.AddDocument(ctx, "the warehouse inventory procedure requires weekly audits",
		map[string]string{"filename": "ops.txt"})
	require.NoError(t, err)

	answer, err := engine.Query(ctx, "how often are audits")
	require.NoError(t, err, "model failure must not fail the query")

	assert.Contains(t, answer, "Based on the documents in my knowledge base")
	assert.Contains(t, answer, "warehouse inventory procedure")
	assert.Contains(t, answer, "**Query:** how often are audits")
	assert.Contains(t, answer, "document(s) found")
}

func TestQuery_SystemPromptTruncatesContext(t *testing.T) {
	chat := &scriptedChat{reply: "ok"}
	store := knowledge.NewInMemory(&testutil.WordEmbedder{}, log.NewNop())
	engine, err := NewEngine(store, chat, log.NewNop(), Options{ChunkSize: 600, ChunkOverlap: 100})
	require.NoError(t, err)
	ctx := context.Background()

	// Enough text that the joined hits exceed the prompt cap.
	_, err = engine.AddDocument(ctx, words(3000), map[string]string{"filename": "big.txt"})
	require.NoError(t, err)

	_, err = engine.Query(ctx, "w0")
	require.NoError(t, err)

	const header = "Context from knowledge base:\n"
	idx := strings.Index(chat.lastSystem, header)
	require.GreaterOrEqual(t, idx, 0)
	body := chat.lastSystem[idx+len(header):]
	ctxEnd := strings.Index(body, "\n\nGuidelines:")
	require.GreaterOrEqual(t, ctxEnd, 0)
	assert.LessOrEqual(t, ctxEnd, maxContextChars)
}

func TestStats(t *testing.T) {
	engine, _ := newTestEngine(t, &scriptedChat{})

	stats := engine.Stats()
	assert.Equal(t, 0, stats.TotalDocuments)
	assert.Equal(t, GlobalCollection, stats.CollectionName)

	_, err := engine.AddDocument(context.Background(), words(50), nil)
	require.NoError(t, err)

	assert.Equal(t, 4, engine.Stats().TotalDocuments)
}
