// Package testutil provides deterministic test doubles for the inference
// surfaces: a local embedder and a scripted chat-completion server.
// Nothing here touches the network beyond httptest listeners.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// EmbedderDimensions is the vector size produced by WordEmbedder.
const EmbedderDimensions = 64

// WordEmbedder is a deterministic bag-of-words embedder for tests.
// Each word is hashed into one of a fixed number of buckets, so texts that
// share words produce vectors with high cosine similarity. Identical text
// always produces the identical vector.
type WordEmbedder struct {
	// FailWith, when non-nil, is returned by every Embed call.
	FailWith error

	// Calls counts Embed invocations.
	Calls int
}

// Embed maps text to a normalized bag-of-words vector.
func (e *WordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.Calls++
	if e.FailWith != nil {
		return nil, e.FailWith
	}

	vec := make([]float32, EmbedderDimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(word, ".,!?;:\"'")))
		vec[h.Sum32()%EmbedderDimensions]++
	}

	// Normalize so cosine similarity is a plain dot product downstream.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	} else {
		// Zero vectors break cosine math in the vector store; give empty
		// text a stable non-zero direction instead.
		vec[0] = 1
	}

	return vec, nil
}
