package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/crossaudit-gateway/utils"
	"go.uber.org/zap"
)

const readinessTimeout = 5 * time.Second

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Probe is one named readiness dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// DatabaseProbe pings db and runs SELECT 1. A nil db always passes.
func DatabaseProbe(name string, db *sql.DB) Probe {
	return Probe{
		Name: name,
		Check: func(ctx context.Context) error {
			if db == nil {
				return nil
			}
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			var result int
			return db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
		},
	}
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	probes []Probe
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(logger *zap.Logger, probes ...Probe) *HealthHandler {
	return &HealthHandler{
		probes: probes,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Liveness only: 200 while the process serves requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.probes))
	allHealthy := true

	for _, p := range h.probes {
		if err := p.Check(ctx); err != nil {
			h.logger.Warn("readiness check failed",
				zap.String("check", p.Name),
				zap.Error(err))
			checks[p.Name] = "unhealthy"
			allHealthy = false
			continue
		}
		checks[p.Name] = "healthy"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
