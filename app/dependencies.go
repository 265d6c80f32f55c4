package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/config"
	"github.com/upb/crossaudit-gateway/internal/alerts"
	"github.com/upb/crossaudit-gateway/internal/observability"
	"github.com/upb/crossaudit-gateway/internal/policy"
	"github.com/upb/crossaudit-gateway/internal/rag"
	"github.com/upb/crossaudit-gateway/middleware"
	"github.com/upb/crossaudit-gateway/repositories"
	"github.com/upb/crossaudit-gateway/repositories/badger"
	"github.com/upb/crossaudit-gateway/repositories/postgres"
	"github.com/upb/crossaudit-gateway/services/audit"
	"github.com/upb/crossaudit-gateway/services/chat"
	"github.com/upb/crossaudit-gateway/services/documents"
	"github.com/upb/crossaudit-gateway/services/jobs"
	"github.com/upb/crossaudit-gateway/services/keys"
	"github.com/upb/crossaudit-gateway/services/providers"
	"github.com/upb/crossaudit-gateway/services/providers/openai"
	"github.com/upb/crossaudit-gateway/services/ratelimit"
	"go.uber.org/zap"
)

// rateLimitIdle is how long an organization's bucket survives without traffic.
const rateLimitIdle = time.Hour

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	AuditLedger  repositories.AuditLedgerRepository
	Documents    repositories.DocumentRepository
	Chunks       repositories.ChunkRepository
	BillingUsage repositories.BillingUsageRepository
	Blobs        repositories.BlobStore
	TxManager    repositories.TransactionManager

	// Engines
	Policy    *policy.Engine
	Embedder  rag.Embedder
	Retriever *rag.Retriever
	Alerts    *alerts.Bus

	// Model call
	Keys  *keys.Store
	Model providers.ModelClient

	// Services
	AuditService    *audit.AuditService
	ChatService     *chat.ChatService
	DocumentService *documents.DocumentService
	RateLimiter     *ratelimit.RateLimitService
	Scheduler       *jobs.Scheduler

	// HTTP
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies opens the database, the blob store and the rule file, then
// wires everything else. A rule file that fails to load is fatal.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := factory.InitSchema(ctx, cfg.Retrieval.EmbeddingDim); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	engine, err := policy.LoadFile(cfg.Policy.RulesPath)
	if err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to load policy rules: %w", err)
	}
	logger.Info("policy rules loaded",
		zap.String("path", cfg.Policy.RulesPath),
		zap.Int("rules", engine.Len()))

	blobs, err := badger.NewDocumentStore(cfg.Storage, logger)
	if err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	deps, err := Assemble(cfg, logger, factory, blobs, engine)
	if err != nil {
		_ = blobs.Close()
		_ = factory.Close()
		return nil, err
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// Assemble wires services over already opened infrastructure. It performs no I/O.
func Assemble(
	cfg *config.Config,
	logger *zap.Logger,
	factory *postgres.RepositoryFactory,
	blobs repositories.BlobStore,
	engine *policy.Engine,
) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     observability.NewMetrics(nil),
		RepoFactory: factory,
		DB:          factory.GetDB(),
		Blobs:       blobs,
		Policy:      engine,
	}

	deps.initRepositories()
	deps.initRetrieval(cfg)
	deps.initModel(cfg)
	deps.initServices(cfg)

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.AuditLedger = repos.AuditLedger
	d.Documents = repos.Documents
	d.Chunks = repos.Chunks
	d.BillingUsage = repos.BillingUsage
	d.TxManager = d.RepoFactory.GetTransactionManager()
}

// initRetrieval sets up the embedder, the chunk index search and the alert bus
func (d *Dependencies) initRetrieval(cfg *config.Config) {
	d.Embedder = rag.NewHashEmbedder(cfg.Retrieval.EmbeddingDim)
	d.Retriever = rag.NewRetriever(d.Embedder, d.Chunks, d.Metrics, d.Logger.Named("retrieval"))
	d.Alerts = alerts.NewBus(cfg.Alerts.BufferSize, d.Logger.Named("alerts"))
}

// initModel builds the model client: OpenAI when a key is stored, the local
// responder otherwise. Keys added later through /keys take effect immediately.
func (d *Dependencies) initModel(cfg *config.Config) {
	d.Keys = keys.NewStore(map[string]string{
		openai.ProviderName: cfg.Providers.OpenAI.APIKey,
	})

	adapter := openai.NewOpenAIAdapter(providers.ProviderConfig{
		BaseURL:    cfg.Providers.OpenAI.BaseURL,
		Model:      cfg.Providers.OpenAI.Model,
		Timeout:    cfg.Providers.OpenAI.Timeout,
		MaxRetries: cfg.Providers.OpenAI.MaxRetries,
	}, d.Keys)

	d.Model = providers.NewFallbackClient(adapter, providers.NewLocalClient(), d.Logger.Named("model"))

	if cfg.Providers.OpenAI.APIKey == "" {
		d.Logger.Warn("no model provider key configured, using local responder")
	}
}

// initServices wires the domain services
func (d *Dependencies) initServices(cfg *config.Config) {
	d.AuditService = audit.NewAuditService(d.AuditLedger, d.Metrics, d.Logger.Named("audit"))

	d.ChatService = chat.NewChatService(
		d.Retriever,
		d.Policy,
		d.Model,
		d.AuditService,
		d.Alerts,
		d.Metrics,
		chat.Config{
			RetrievalLimit:    cfg.Retrieval.Limit,
			RecordModelErrors: cfg.Audit.RecordModelErrors,
		},
		d.Logger.Named("chat"),
	)

	d.DocumentService = documents.NewDocumentService(
		d.Documents,
		d.Chunks,
		d.Blobs,
		d.TxManager,
		d.Embedder,
		d.Retriever,
		documents.Config{
			ChunkWords:  cfg.Retrieval.ChunkSizeWords,
			SearchLimit: cfg.Retrieval.Limit,
		},
		d.Logger.Named("documents"),
	)

	d.RateLimiter = ratelimit.NewRateLimitService(
		cfg.RateLimit.RequestsPerSecond,
		cfg.RateLimit.Burst,
		d.Logger.Named("ratelimit"),
	)

	d.Scheduler = jobs.NewScheduler(d.Metrics, d.Logger.Named("jobs"))
}

// initAuth selects token mode when a JWT secret is configured, header mode otherwise
func (d *Dependencies) initAuth(cfg *config.Config) error {
	defaultOrg, err := uuid.Parse(cfg.Auth.DefaultOrgID)
	if err != nil {
		return fmt.Errorf("invalid default org id: %w", err)
	}

	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("no JWT secret configured, trusting X-Org-ID header",
			zap.String("default_org_id", defaultOrg.String()))
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, defaultOrg, d.Logger.Named("auth"))
		return nil
	}

	validator, err := middleware.NewHS256Validator(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, defaultOrg, d.Logger.Named("auth"))
	return nil
}

// StartJobs schedules the billing aggregator, the ledger sealer and the rate
// limit sweep, then starts the scheduler. Jobs stop when ctx is cancelled.
func (d *Dependencies) StartJobs(ctx context.Context) error {
	if !d.Config.Jobs.Enabled {
		d.Logger.Info("background jobs disabled")
		return nil
	}

	billing := jobs.NewBillingAggregator(d.AuditLedger, d.BillingUsage, d.Logger.Named("jobs"))
	if err := d.Scheduler.Add(ctx, d.Config.Jobs.BillingSchedule, billing); err != nil {
		return err
	}

	sealer := jobs.NewLedgerSealer(d.AuditLedger, d.Logger.Named("jobs"))
	if err := d.Scheduler.Add(ctx, d.Config.Jobs.SealSchedule, sealer); err != nil {
		return err
	}

	if d.RateLimiter.Enabled() {
		sweep := jobs.NewLimiterSweep(d.RateLimiter, rateLimitIdle, d.Logger.Named("jobs"))
		if err := d.Scheduler.Add(ctx, jobs.SweepSchedule, sweep); err != nil {
			return err
		}
	}

	d.Scheduler.Start(ctx)
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Scheduler != nil {
		d.Scheduler.Stop()
	}

	// End open /alerts streams
	if d.Alerts != nil {
		d.Alerts.Close()
	}

	if d.Blobs != nil {
		if err := d.Blobs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close document store: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
