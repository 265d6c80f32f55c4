package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/crossaudit-gateway/models"
	"github.com/upb/crossaudit-gateway/repositories"
	"go.uber.org/zap"
)

const BillingJobName = "billing"

// BillingAggregator recomputes today's token totals per organization from
// the ledger and upserts them, so repeated ticks on the same day replace
// the row instead of duplicating it.
type BillingAggregator struct {
	ledger repositories.AuditLedgerRepository
	usage  repositories.BillingUsageRepository
	now    func() time.Time
	logger *zap.Logger
}

// NewBillingAggregator creates a new BillingAggregator instance
func NewBillingAggregator(ledger repositories.AuditLedgerRepository, usage repositories.BillingUsageRepository, logger *zap.Logger) *BillingAggregator {
	return &BillingAggregator{
		ledger: ledger,
		usage:  usage,
		now:    time.Now,
		logger: logger,
	}
}

func (a *BillingAggregator) Name() string {
	return BillingJobName
}

// Run aggregates the current UTC day. The first failing write aborts the tick.
func (a *BillingAggregator) Run(ctx context.Context) error {
	now := a.now().UTC()
	day := models.Day(now)

	totals, err := a.ledger.SumTokensByOrg(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("failed to sum ledger tokens: %w", err)
	}

	for orgID, tokens := range totals {
		row := &models.BillingUsage{
			OrgID:     orgID,
			Date:      day,
			Tokens:    tokens,
			UpdatedAt: now,
		}
		if err := a.usage.Upsert(ctx, row); err != nil {
			return fmt.Errorf("failed to upsert usage for org %s: %w", orgID, err)
		}
	}

	a.logger.Info("billing usage aggregated",
		zap.String("job", BillingJobName),
		zap.Time("date", day),
		zap.Int("orgs", len(totals)))
	return nil
}
