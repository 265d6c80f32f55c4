package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	SweepJobName = "ratelimit_sweep"

	// SweepSchedule runs the sweep often enough to bound idle buckets.
	SweepSchedule = "@every 10m"
)

// IdleSweeper drops state that has been idle for longer than maxIdle.
type IdleSweeper interface {
	Cleanup(maxIdle time.Duration) int
}

// LimiterSweep evicts idle per-organization rate limit buckets.
type LimiterSweep struct {
	sweeper IdleSweeper
	maxIdle time.Duration
	logger  *zap.Logger
}

// NewLimiterSweep creates a sweep that evicts buckets idle for maxIdle.
func NewLimiterSweep(sweeper IdleSweeper, maxIdle time.Duration, logger *zap.Logger) *LimiterSweep {
	return &LimiterSweep{
		sweeper: sweeper,
		maxIdle: maxIdle,
		logger:  logger,
	}
}

func (s *LimiterSweep) Name() string {
	return SweepJobName
}

func (s *LimiterSweep) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if removed := s.sweeper.Cleanup(s.maxIdle); removed > 0 {
		s.logger.Debug("idle rate limit buckets evicted",
			zap.String("job", SweepJobName),
			zap.Int("removed", removed))
	}
	return nil
}
