package config

import "fmt"

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// API token is the one hard requirement: without it neither embeddings
	// nor chat completions work, so the process must not start.
	if c.AI.APIToken == "" {
		return fmt.Errorf("%w: HUGGINGFACE_API_TOKEN environment variable is required", ErrMissingAPIToken)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPort, c.Server.Port)
	}

	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got overlap=%d size=%d",
			ErrInvalidChunking, c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}

	if c.RAG.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidTopK, c.RAG.TopK)
	}

	// Temperature range follows the chat-completion API contract.
	if c.AI.Temperature < 0.0 || c.AI.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.AI.Temperature)
	}

	if c.AI.MaxTokens < 1 || c.AI.MaxTokens > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d", ErrInvalidMaxTokens, c.AI.MaxTokens)
	}

	if c.Research.TimeoutMS <= 0 {
		return fmt.Errorf("%w: timeout_ms must be positive, got %d", ErrInvalidResearch, c.Research.TimeoutMS)
	}
	if c.Research.MaxChars <= 0 {
		return fmt.Errorf("%w: max_chars must be positive, got %d", ErrInvalidResearch, c.Research.MaxChars)
	}

	return nil
}
