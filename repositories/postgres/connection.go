package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/crossaudit-gateway/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool. MaxOpenConns bounds the
// number of concurrent checkouts shared by every request and job.
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return Wrap(db, logger), nil
}

// Wrap adapts an already opened pool.
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     db,
		logger: logger,
	}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

const ledgerSchema = `
		CREATE TABLE IF NOT EXISTS audit_ledger (
			id BIGSERIAL PRIMARY KEY,
			org_id UUID NOT NULL,
			prompt TEXT NOT NULL,
			response TEXT NOT NULL DEFAULT '',
			tokens INTEGER NOT NULL DEFAULT 0,
			action VARCHAR(32) NOT NULL,
			score REAL,
			fragment_ids UUID[] NOT NULL DEFAULT '{}',
			trace JSONB,
			ts TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_audit_ledger_org_ts ON audit_ledger(org_id, ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_ledger_ts ON audit_ledger(ts);
		CREATE INDEX IF NOT EXISTS idx_audit_ledger_unsealed ON audit_ledger(id)
			WHERE NOT COALESCE((trace->>'sealed')::boolean, false);

		CREATE TABLE IF NOT EXISTS billing_usage (
			org_id UUID NOT NULL,
			date DATE NOT NULL,
			tokens BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (org_id, date)
		);
`

// InitSchema creates the document, chunk, ledger and billing tables.
// embeddingDim fixes the width of chunks.embedding.
func (db *DB) InitSchema(ctx context.Context, embeddingDim int) error {
	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			org_id UUID NOT NULL,
			path TEXT NOT NULL,
			checksum BYTEA NOT NULL,
			mime VARCHAR(255) NOT NULL,
			size INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_documents_org_id ON documents(org_id);

		CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			doc_id UUID NOT NULL,
			org_id UUID NOT NULL,
			idx INTEGER NOT NULL,
			embedding vector(%d) NOT NULL,
			plaintext TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
		%s`, embeddingDim, ledgerSchema)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully", zap.Int("embedding_dim", embeddingDim))
	return nil
}

// InitLedgerSchema creates only the ledger and billing tables.
// Use for the separate audit database when DATABASE_URL_AUDIT is set.
func (db *DB) InitLedgerSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	db.logger.Info("ledger schema initialized successfully")
	return nil
}
