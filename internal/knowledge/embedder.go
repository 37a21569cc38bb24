package knowledge

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ragline/ragline/internal/ai"
)

// newEmbeddingFunc bridges our ai.Embedder with chromem-go's requirements.
//
// Note: chromem-go normalizes vectors itself, so no manual normalization
// is needed here.
func newEmbeddingFunc(embedder ai.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed failed: %w", err)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("no embedding returned")
		}
		return vec, nil
	}
}
