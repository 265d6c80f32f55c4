package rag

import (
	"context"

	"github.com/upb/crossaudit-gateway/internal/observability"
	"github.com/upb/crossaudit-gateway/models"
	"go.uber.org/zap"
)

// Retriever performs best-effort context retrieval for prompts.
type Retriever struct {
	embedder Embedder
	index    Index
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewRetriever creates a retriever over index.
func NewRetriever(embedder Embedder, index Index, metrics *observability.Metrics, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		metrics:  metrics,
		logger:   logger,
	}
}

// Search returns at most limit fragments nearest to query, most relevant
// first. It never fails: errors are logged and produce an empty result.
func (r *Retriever) Search(ctx context.Context, query string, limit int) []models.Fragment {
	if limit <= 0 {
		return []models.Fragment{}
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.degrade(ctx, "embed", err)
		return []models.Fragment{}
	}

	chunks, err := r.index.Nearest(ctx, embedding, limit)
	if err != nil {
		r.degrade(ctx, "index", err)
		return []models.Fragment{}
	}

	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	fragments := make([]models.Fragment, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		fragments = append(fragments, models.Fragment{ID: c.ID, Text: c.Plaintext})
	}
	return fragments
}

func (r *Retriever) degrade(ctx context.Context, stage string, err error) {
	r.metrics.RecordRetrievalFailure()
	observability.WithRequest(ctx, r.logger).Warn("retrieval failed, continuing without context",
		zap.String("stage", stage),
		zap.Error(err))
}
