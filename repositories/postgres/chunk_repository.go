package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/upb/crossaudit-gateway/models"
	"github.com/upb/crossaudit-gateway/repositories"
	"go.uber.org/zap"
)

// ChunkRepository implements repositories.ChunkRepository on top of pgvector.
type ChunkRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *DB, logger *zap.Logger) repositories.ChunkRepository {
	return &ChunkRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts chunks in order. Run it inside a transaction to keep a
// document and its chunks together.
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []*models.Chunk) error {
	query := `
		INSERT INTO chunks (id, doc_id, org_id, idx, embedding, plaintext)
		VALUES ($1, $2, $3, $4, $5::vector, $6)
	`

	executor := GetExecutor(ctx, r.db)
	for _, c := range chunks {
		if _, err := executor.ExecContext(ctx, query,
			c.ID,
			c.DocID,
			c.OrgID,
			c.Idx,
			VectorLiteral(c.Embedding),
			c.Plaintext,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Idx, err)
		}
	}

	r.logger.Debug("chunks inserted", zap.Int("count", len(chunks)))
	return nil
}

// Nearest returns up to limit chunks by ascending L2 distance to embedding.
func (r *ChunkRepository) Nearest(ctx context.Context, embedding []float32, limit int) ([]*models.Chunk, error) {
	query := `
		SELECT id, doc_id, org_id, idx, plaintext
		FROM chunks
		ORDER BY embedding <-> $1::vector
		LIMIT $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, VectorLiteral(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	chunks := []*models.Chunk{}
	for rows.Next() {
		c := &models.Chunk{}
		if err := rows.Scan(&c.ID, &c.DocID, &c.OrgID, &c.Idx, &c.Plaintext); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk rows: %w", err)
	}

	return chunks, nil
}

// VectorLiteral renders v in pgvector's text input format, e.g. "[1,2.5,3]".
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*4 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
