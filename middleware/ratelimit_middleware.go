package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/services/ratelimit"
	"github.com/upb/crossaudit-gateway/utils"
	"go.uber.org/zap"
)

// RateLimitChecker defines the interface for rate limit checking
type RateLimitChecker interface {
	CheckLimit(ctx context.Context, orgID uuid.UUID) *ratelimit.RateLimitResult
}

// RateLimit rejects requests over the organization's budget with 429.
// It must run after ResolveTenant.
func RateLimit(checker RateLimitChecker, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			orgID := GetOrgIDFromContext(ctx)

			result := checker.CheckLimit(ctx, orgID)
			if !result.Allowed {
				logger.Info("rate limit exceeded",
					zap.String("request_id", middleware.GetReqID(ctx)),
					zap.String("org_id", orgID.String()))
				_ = utils.WriteTooManyRequests(w, "Rate limit exceeded", result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
