package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/crossaudit-gateway/models"
	"github.com/upb/crossaudit-gateway/repositories"
	"go.uber.org/zap"
)

// AuditLedgerRepository implements repositories.AuditLedgerRepository
type AuditLedgerRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditLedgerRepository creates a new audit ledger repository
func NewAuditLedgerRepository(db *DB, logger *zap.Logger) repositories.AuditLedgerRepository {
	return &AuditLedgerRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts one entry. The id and timestamp are assigned by the database.
func (r *AuditLedgerRepository) Append(ctx context.Context, entry *models.AuditEntry) (int64, error) {
	query := `
		INSERT INTO audit_ledger (org_id, prompt, response, tokens, action, score, fragment_ids, trace)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, ts
	`

	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query,
		entry.OrgID,
		entry.Prompt,
		entry.Response,
		entry.Tokens,
		entry.Action,
		entry.Score,
		pq.Array(entry.FragmentIDStrings()),
		entry.Trace,
	).Scan(&entry.ID, &entry.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to append audit entry: %w", err)
	}

	r.logger.Debug("audit entry appended",
		zap.Int64("id", entry.ID),
		zap.String("org_id", entry.OrgID.String()),
		zap.String("action", entry.Action))
	return entry.ID, nil
}

// ListByOrg returns an organization's entries, newest first
func (r *AuditLedgerRepository) ListByOrg(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, org_id, prompt, response, tokens, action, score, fragment_ids, trace, ts
		FROM audit_ledger
		WHERE org_id = $1
		ORDER BY ts DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*models.AuditEntry{}
	for rows.Next() {
		entry := &models.AuditEntry{}
		var fragmentIDs pq.StringArray
		if err := rows.Scan(
			&entry.ID,
			&entry.OrgID,
			&entry.Prompt,
			&entry.Response,
			&entry.Tokens,
			&entry.Action,
			&entry.Score,
			&fragmentIDs,
			&entry.Trace,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if entry.FragmentIDs, err = models.ParseFragmentIDs(fragmentIDs); err != nil {
			return nil, fmt.Errorf("audit entry %d: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entry rows: %w", err)
	}

	return entries, nil
}

// SumTokensByOrg sums tokens per organization for entries with ts in [start, end)
func (r *AuditLedgerRepository) SumTokensByOrg(ctx context.Context, start, end time.Time) (map[uuid.UUID]int64, error) {
	query := `
		SELECT org_id, COALESCE(SUM(tokens), 0)
		FROM audit_ledger
		WHERE ts >= $1 AND ts < $2
		GROUP BY org_id
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to sum audit tokens: %w", err)
	}
	defer rows.Close()

	totals := make(map[uuid.UUID]int64)
	for rows.Next() {
		var orgID uuid.UUID
		var tokens int64
		if err := rows.Scan(&orgID, &tokens); err != nil {
			return nil, fmt.Errorf("failed to scan token total: %w", err)
		}
		totals[orgID] = tokens
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token totals: %w", err)
	}

	return totals, nil
}

// SealUnsealed sets trace.sealed on every entry lacking it in one statement.
// Already sealed rows are not selected, so resealing is a no-op.
func (r *AuditLedgerRepository) SealUnsealed(ctx context.Context, sealedAt time.Time) (int64, error) {
	query := `
		UPDATE audit_ledger
		SET trace = COALESCE(trace, '{}'::jsonb) || jsonb_build_object('sealed', true, 'sealed_at', $1::text)
		WHERE NOT COALESCE((trace->>'sealed')::boolean, false)
	`

	executor := GetExecutor(ctx, r.db)
	res, err := executor.ExecContext(ctx, query, sealedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to seal audit entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read sealed row count: %w", err)
	}
	return n, nil
}
