package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/crossaudit-gateway/repositories"
	"go.uber.org/zap"
)

const SealJobName = "seal"

// LedgerSealer marks every unsealed ledger entry as sealed. Already sealed
// entries are not selected, so a tick over a sealed ledger changes nothing.
type LedgerSealer struct {
	ledger repositories.AuditLedgerRepository
	now    func() time.Time
	logger *zap.Logger
}

// NewLedgerSealer creates a new LedgerSealer instance
func NewLedgerSealer(ledger repositories.AuditLedgerRepository, logger *zap.Logger) *LedgerSealer {
	return &LedgerSealer{
		ledger: ledger,
		now:    time.Now,
		logger: logger,
	}
}

func (s *LedgerSealer) Name() string {
	return SealJobName
}

func (s *LedgerSealer) Run(ctx context.Context) error {
	sealed, err := s.ledger.SealUnsealed(ctx, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to seal ledger: %w", err)
	}

	if sealed > 0 {
		s.logger.Info("ledger entries sealed",
			zap.String("job", SealJobName),
			zap.Int64("sealed", sealed))
	} else {
		s.logger.Debug("no unsealed ledger entries", zap.String("job", SealJobName))
	}
	return nil
}
