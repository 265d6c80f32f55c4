package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitService keeps one token bucket per organization.
// A zero requestsPerSecond disables limiting.
type RateLimitService struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	now      func() time.Time
	logger   *zap.Logger
}

// NewRateLimitService creates a new RateLimitService instance
func NewRateLimitService(requestsPerSecond float64, burst int, logger *zap.Logger) *RateLimitService {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitService{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
		now:      time.Now,
		logger:   logger,
	}
}

// Enabled reports whether any limit is enforced.
func (s *RateLimitService) Enabled() bool {
	return s != nil && s.limit > 0
}

// CheckLimit consumes one request from the organization's bucket.
func (s *RateLimitService) CheckLimit(ctx context.Context, orgID uuid.UUID) *RateLimitResult {
	if !s.Enabled() {
		return &RateLimitResult{Allowed: true}
	}

	now := s.now()
	limiter := s.limiterFor(buildScopeKey(orgID), now)

	r := limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay == 0 {
		return &RateLimitResult{Allowed: true}
	}
	r.CancelAt(now)

	s.logger.Debug("rate limit exceeded",
		zap.String("org_id", orgID.String()),
		zap.Duration("retry_after", delay))
	return &RateLimitResult{Allowed: false, RetryAfter: delay}
}

// Cleanup drops buckets idle for longer than maxIdle and returns how many
// were removed.
func (s *RateLimitService) Cleanup(maxIdle time.Duration) int {
	if s == nil {
		return 0
	}
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(s.limiters, key)
			removed++
		}
	}
	return removed
}

func (s *RateLimitService) limiterFor(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func buildScopeKey(orgID uuid.UUID) string {
	return "org:" + orgID.String()
}
