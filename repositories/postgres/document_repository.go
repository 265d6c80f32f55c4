package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/models"
	"github.com/upb/crossaudit-gateway/repositories"
	"go.uber.org/zap"
)

// DocumentRepository implements repositories.DocumentRepository
type DocumentRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB, logger *zap.Logger) repositories.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a document row
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, org_id, path, checksum, mime, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		doc.ID,
		doc.OrgID,
		doc.Path,
		doc.Checksum,
		doc.Mime,
		doc.Size,
		doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	r.logger.Debug("document created", zap.String("id", doc.ID.String()), zap.String("mime", doc.Mime))
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := `
		SELECT id, org_id, path, checksum, mime, size, created_at
		FROM documents
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	doc := &models.Document{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&doc.OrgID,
		&doc.Path,
		&doc.Checksum,
		&doc.Mime,
		&doc.Size,
		&doc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// ListIDsByOrg returns the ids of an organization's documents, oldest first
func (r *DocumentRepository) ListIDsByOrg(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM documents
		WHERE org_id = $1
		ORDER BY created_at ASC, id ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}

	return ids, nil
}
