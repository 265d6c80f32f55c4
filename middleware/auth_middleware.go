package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/utils"
	"go.uber.org/zap"
)

// OrgIDHeader carries the organization when token auth is disabled.
const OrgIDHeader = "X-Org-ID"

// TokenValidator defines the interface for validating JWT tokens
type TokenValidator interface {
	// ValidateToken validates a JWT token and returns claims
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// AuthMiddleware resolves the calling organization for every request.
type AuthMiddleware struct {
	validator    TokenValidator
	defaultOrgID uuid.UUID
	logger       *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. A nil validator selects
// header mode: the org comes from X-Org-ID, falling back to defaultOrgID.
func NewAuthMiddleware(validator TokenValidator, defaultOrgID uuid.UUID, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator:    validator,
		defaultOrgID: defaultOrgID,
		logger:       logger,
	}
}

// ResolveTenant puts the caller's organization ID into the request context.
func (m *AuthMiddleware) ResolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := middleware.GetReqID(ctx)

		if m.validator == nil {
			orgID := m.defaultOrgID
			if raw := strings.TrimSpace(r.Header.Get(OrgIDHeader)); raw != "" {
				parsed, err := uuid.Parse(raw)
				if err != nil {
					m.logger.Warn("invalid org id header",
						zap.String("request_id", requestID),
						zap.String("org_id", raw))
					_ = utils.WriteBadRequest(w, "X-Org-ID must be a valid UUID", nil)
					return
				}
				orgID = parsed
			}
			next.ServeHTTP(w, r.WithContext(WithOrgID(ctx, orgID)))
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			m.logger.Warn("missing token", zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		orgID, err := uuid.Parse(claims.OrgID)
		if err != nil {
			m.logger.Warn("invalid org_id in claims",
				zap.String("request_id", requestID),
				zap.String("org_id", claims.OrgID))
			_ = utils.WriteForbidden(w, "Invalid organization ID")
			return
		}

		m.logger.Debug("tenant resolved",
			zap.String("request_id", requestID),
			zap.String("org_id", orgID.String()))

		ctx = WithClaims(ctx, claims)
		ctx = WithOrgID(ctx, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
