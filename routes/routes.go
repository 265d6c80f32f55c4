package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/crossaudit-gateway/app"
	"github.com/upb/crossaudit-gateway/handlers"
	authmw "github.com/upb/crossaudit-gateway/middleware"
	"github.com/upb/crossaudit-gateway/utils"
)

// requestTimeout bounds every route except the alert streams.
const requestTimeout = 60 * time.Second

// blobCounter is implemented by the badger document store.
type blobCounter interface {
	Count() (int, error)
}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	logger := deps.Logger

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(authmw.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", authmw.OrgIDHeader},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(logger, probes(deps)...)
	chatHandler := handlers.NewChatHandler(deps.ChatService, logger)
	documentHandler := handlers.NewDocumentHandler(deps.DocumentService, 0, logger)
	alertsHandler := handlers.NewAlertsHandler(deps.Alerts, logger)
	keysHandler := handlers.NewKeysHandler(deps.Keys, logger)
	ledgerHandler := handlers.NewLedgerHandler(deps.AuditService, deps.BillingUsage, logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	if deps.Config.Observability.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.AuthMiddleware.ResolveTenant)

		// Long-lived alert streams
		r.Get("/alerts", alertsHandler.HandleStream)
		r.Get("/alerts/ws", alertsHandler.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Group(func(r chi.Router) {
				if deps.RateLimiter.Enabled() {
					r.Use(authmw.RateLimit(deps.RateLimiter, logger.Named("ratelimit")))
				}
				r.Post("/chat", chatHandler.HandleChat)
			})

			r.Get("/docs", documentHandler.HandleList)
			r.Get("/docs/{id}", documentHandler.HandleGet)
			r.Post("/upload", documentHandler.HandleUpload)
			r.Get("/search", documentHandler.HandleSearch)

			r.Get("/keys", keysHandler.HandleList)
			// The credential is shared by every org, so unauthenticated
			// header mode cannot replace it.
			if deps.Config.Auth.JWTSecret != "" {
				r.Post("/keys", keysHandler.HandleSet)
			}

			r.Get("/audit", ledgerHandler.HandleListAudit)
			r.Get("/billing/usage", ledgerHandler.HandleUsage)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusMethodNotAllowed, utils.ErrorResponse{
			Error:   "method_not_allowed",
			Message: "method not allowed",
		})
	})

	return r
}

// probes lists the readiness dependencies: the main pool, a separate ledger
// pool when configured, and the blob store.
func probes(deps *app.Dependencies) []handlers.Probe {
	var list []handlers.Probe
	if deps.DB != nil {
		list = append(list, handlers.DatabaseProbe("database", deps.DB.DB))
	}
	if deps.RepoFactory != nil {
		if ledger := deps.RepoFactory.LedgerDB(); ledger != deps.DB {
			list = append(list, handlers.DatabaseProbe("ledger_database", ledger.DB))
		}
	}
	if counter, ok := deps.Blobs.(blobCounter); ok {
		list = append(list, handlers.Probe{
			Name: "blob_store",
			Check: func(context.Context) error {
				_, err := counter.Count()
				return err
			},
		})
	}
	return list
}
