package rag

import (
	"context"
	"fmt"
)

// DefaultDimension is the embedding width used by the chunks table.
const DefaultDimension = 1536

// HashEmbedder is a deterministic placeholder embedder: byte i of the text is
// added to component i mod dimension.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns an embedder producing vectors of length dim.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Dimension() int {
	return e.dim
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	vec := make([]float32, e.dim)
	for i := 0; i < len(text); i++ {
		vec[i%e.dim] += float32(text[i])
	}
	return vec, nil
}

// EmbedAll embeds each text in order.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}
