package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/middleware"
	"github.com/upb/crossaudit-gateway/models"
	"github.com/upb/crossaudit-gateway/utils"
	"go.uber.org/zap"
)

// DefaultUsageWindow is the GET /billing/usage range when from is omitted
const DefaultUsageWindow = 30 * 24 * time.Hour

// AuditLister reads the audit ledger
type AuditLister interface {
	List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.AuditEntry, error)
}

// UsageLister reads the billing usage table
type UsageLister interface {
	ListByOrg(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*models.BillingUsage, error)
}

// LedgerHandler serves the read side of the audit ledger and its billing rollup
type LedgerHandler struct {
	audit  AuditLister
	usage  UsageLister
	now    func() time.Time
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(audit AuditLister, usage UsageLister, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{
		audit:  audit,
		usage:  usage,
		now:    time.Now,
		logger: logger,
	}
}

// HandleListAudit handles GET /audit?limit=&offset=
func (h *LedgerHandler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := utils.QueryInt(r, "limit", 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	offset, err := utils.QueryInt(r, "offset", 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	entries, err := h.audit.List(ctx, middleware.GetOrgIDFromContext(ctx), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}

	if err := utils.WriteOK(w, entries); err != nil {
		h.logger.Error("failed to write audit entries", zap.Error(err))
	}
}

// HandleUsage handles GET /billing/usage?from=&to= (inclusive dates, UTC)
func (h *LedgerHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	today := models.Day(h.now())
	to, err := utils.QueryDate(r, "to", today)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	from, err := utils.QueryDate(r, "from", to.Add(-DefaultUsageWindow))
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if from.After(to) {
		_ = utils.WriteBadRequest(w, "from must not be after to", nil)
		return
	}

	rows, err := h.usage.ListByOrg(ctx, middleware.GetOrgIDFromContext(ctx), from, to)
	if err != nil {
		h.logger.Error("failed to list billing usage", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "An internal error occurred")
		return
	}
	if rows == nil {
		rows = []*models.BillingUsage{}
	}

	if err := utils.WriteOK(w, rows); err != nil {
		h.logger.Error("failed to write billing usage", zap.Error(err))
	}
}
