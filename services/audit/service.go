package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/internal/observability"
	"github.com/upb/crossaudit-gateway/models"
	"github.com/upb/crossaudit-gateway/repositories"
	"github.com/upb/crossaudit-gateway/services"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// AuditService writes and reads the append-only audit ledger.
type AuditService struct {
	ledger  repositories.AuditLedgerRepository
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAuditService creates a new AuditService instance
func NewAuditService(ledger repositories.AuditLedgerRepository, metrics *observability.Metrics, logger *zap.Logger) *AuditService {
	return &AuditService{
		ledger:  ledger,
		metrics: metrics,
		logger:  logger,
	}
}

// Record appends one entry. A failed write is logged and counted, never
// returned: the outcome of the request that produced the entry stands.
// It reports whether the entry was stored.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditEntry) bool {
	id, err := s.ledger.Append(ctx, entry)
	if err != nil {
		s.metrics.RecordAuditFailure()
		observability.WithRequest(ctx, s.logger).Error("failed to append audit entry",
			zap.String("org_id", entry.OrgID.String()),
			zap.String("action", entry.Action),
			zap.Error(err))
		return false
	}

	observability.WithRequest(ctx, s.logger).Debug("audit entry appended",
		zap.Int64("id", id),
		zap.String("org_id", entry.OrgID.String()),
		zap.String("action", entry.Action),
		zap.Int32("tokens", entry.Tokens))
	return true
}

// List returns an organization's entries, newest first.
func (s *AuditService) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.ledger.ListByOrg(ctx, orgID, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list audit entries", err)
	}
	return entries, nil
}
