package rag

import (
	"context"

	"github.com/upb/crossaudit-gateway/models"
)

// Embedder generates fixed-dimension vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Index is the external similarity-search primitive. Results are ordered by
// ascending vector distance.
type Index interface {
	Nearest(ctx context.Context, embedding []float32, limit int) ([]*models.Chunk, error)
}
