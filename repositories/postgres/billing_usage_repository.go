package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/models"
	"github.com/upb/crossaudit-gateway/repositories"
	"go.uber.org/zap"
)

// BillingUsageRepository implements repositories.BillingUsageRepository
type BillingUsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewBillingUsageRepository creates a new billing usage repository
func NewBillingUsageRepository(db *DB, logger *zap.Logger) repositories.BillingUsageRepository {
	return &BillingUsageRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the total for (org, day). A rerun for the same day replaces
// the previous total instead of adding a second row.
func (r *BillingUsageRepository) Upsert(ctx context.Context, usage *models.BillingUsage) error {
	query := `
		INSERT INTO billing_usage (org_id, date, tokens, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, date)
		DO UPDATE SET tokens = EXCLUDED.tokens, updated_at = EXCLUDED.updated_at
	`

	if usage.UpdatedAt.IsZero() {
		usage.UpdatedAt = time.Now().UTC()
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		usage.OrgID,
		models.Day(usage.Date),
		usage.Tokens,
		usage.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert billing usage: %w", err)
	}

	return nil
}

// ListByOrg returns an organization's rows with date in [from, to], oldest first
func (r *BillingUsageRepository) ListByOrg(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*models.BillingUsage, error) {
	query := `
		SELECT org_id, date, tokens, updated_at
		FROM billing_usage
		WHERE org_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, orgID, models.Day(from), models.Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list billing usage: %w", err)
	}
	defer rows.Close()

	out := []*models.BillingUsage{}
	for rows.Next() {
		u := &models.BillingUsage{}
		if err := rows.Scan(&u.OrgID, &u.Date, &u.Tokens, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan billing usage: %w", err)
		}
		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating billing usage rows: %w", err)
	}

	return out, nil
}
