package knowledge

// Document represents a stored text chunk.
// Metadata must be map[string]string to comply with chromem-go requirements.
type Document struct {
	ID        string            // Unique identifier (scoped per collection)
	Content   string            // Chunk text
	Metadata  map[string]string // Optional metadata (source, filename, type, timestamps)
	Embedding []float32         // Precomputed vector; computed by the store when empty
}

// Result represents a single search result with similarity score.
type Result struct {
	Document   Document
	Similarity float32 // Cosine similarity (0-1, higher is closer)
}

// SearchOption configures search behavior using the functional options
// pattern (as in context.WithTimeout, grpc.Dial).
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK int
}

// WithTopK sets the maximum number of results to return.
// Default is 5 if not specified. The store clamps the value to the
// collection size, so a too-large K is never an error.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{topK: 5}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
