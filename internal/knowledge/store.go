// Package knowledge manages the persistent vector store backing all
// retrieval. Each collection is an isolated partition: the shared
// "documents" collection serves the HTTP API, Slack and voice, while every
// registered user owns a private collection named after their user ID.
// Documents in one collection are never visible from another.
package knowledge

import (
	"context"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ragline/ragline/internal/ai"
	"github.com/ragline/ragline/internal/log"
)

// Store manages named vector collections with embedding generation and
// cosine similarity search on top of chromem-go.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       *chromem.DB
	embedder ai.Embedder
	logger   log.Logger
}

// NewPersistent opens (or creates) a store persisted under dir.
func NewPersistent(dir string, embedder ai.Embedder, logger log.Logger) (*Store, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector store at %s: %w", dir, err)
	}
	return &Store{db: db, embedder: embedder, logger: logger}, nil
}

// NewInMemory creates a volatile store. Used in tests.
func NewInMemory(embedder ai.Embedder, logger log.Logger) *Store {
	return &Store{db: chromem.NewDB(), embedder: embedder, logger: logger}
}

// EnsureCollection creates a collection if it does not exist.
// Idempotent: re-creating an existing collection is a no-op, not an error.
func (s *Store) EnsureCollection(name string) error {
	_, err := s.db.GetOrCreateCollection(name, nil, newEmbeddingFunc(s.embedder))
	if err != nil {
		return fmt.Errorf("ensuring collection %q: %w", name, err)
	}
	return nil
}

// Add embeds and stores documents in the named collection, creating the
// collection if needed. Documents carrying a precomputed embedding are
// stored as-is.
func (s *Store) Add(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	col, err := s.db.GetOrCreateCollection(collection, nil, newEmbeddingFunc(s.embedder))
	if err != nil {
		return fmt.Errorf("opening collection %q: %w", collection, err)
	}

	cdocs := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		cdocs = append(cdocs, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
		})
	}

	if err := col.AddDocuments(ctx, cdocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding %d documents to %q: %w", len(docs), collection, err)
	}

	s.logger.Debug("added documents", "collection", collection, "count", len(docs))
	return nil
}

// Query returns the nearest documents to the query text by cosine
// similarity. A missing or empty collection yields an empty result set,
// not an error, and the requested top-K is clamped to the collection size
// (the count may change between check and query, so clamping happens at
// query time).
func (s *Store) Query(ctx context.Context, collection, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	col := s.db.GetCollection(collection, newEmbeddingFunc(s.embedder))
	if col == nil {
		return nil, nil
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	topK := cfg.topK
	if topK > count {
		topK = count
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := col.QueryEmbedding(ctx, vec, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %q: %w", collection, err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Document: Document{
				ID:       hit.ID,
				Content:  hit.Content,
				Metadata: hit.Metadata,
			},
			Similarity: hit.Similarity,
		})
	}

	return results, nil
}

// Count returns the number of documents in a collection.
// A missing collection counts as zero.
func (s *Store) Count(collection string) int {
	col := s.db.GetCollection(collection, newEmbeddingFunc(s.embedder))
	if col == nil {
		return 0
	}
	return col.Count()
}

// DeleteCollection removes a collection and all of its documents.
// Deleting a collection that does not exist is a no-op.
func (s *Store) DeleteCollection(name string) error {
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %q: %w", name, err)
	}
	s.logger.Debug("deleted collection", "collection", name)
	return nil
}
