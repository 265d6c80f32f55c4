package postgres

import (
	"context"

	"github.com/upb/crossaudit-gateway/config"
	"github.com/upb/crossaudit-gateway/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db       *DB
	ledgerDB *DB // Optional: separate DB for the audit ledger and billing usage
	logger   *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	f := &RepositoryFactory{db: db, logger: logger}

	if cfg.AuditDatabase != nil {
		ledgerDB, err := NewDB(*cfg.AuditDatabase, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		f.ledgerDB = ledgerDB
	}

	return f, nil
}

// NewRepositoryFactoryFromDB builds a factory over existing pools. ledgerDB may be nil.
func NewRepositoryFactoryFromDB(db, ledgerDB *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, ledgerDB: ledgerDB, logger: logger}
}

// InitSchema initializes the main schema and, when configured, the separate ledger schema.
func (f *RepositoryFactory) InitSchema(ctx context.Context, embeddingDim int) error {
	if err := f.db.InitSchema(ctx, embeddingDim); err != nil {
		return err
	}
	if f.ledgerDB != nil {
		return f.ledgerDB.InitLedgerSchema(ctx)
	}
	return nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	ledgerDB := f.LedgerDB()
	return &repositories.Repositories{
		AuditLedger:  NewAuditLedgerRepository(ledgerDB, f.logger),
		Documents:    NewDocumentRepository(f.db, f.logger),
		Chunks:       NewChunkRepository(f.db, f.logger),
		BillingUsage: NewBillingUsageRepository(ledgerDB, f.logger),
	}
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// LedgerDB returns the pool holding the audit ledger.
func (f *RepositoryFactory) LedgerDB() *DB {
	if f.ledgerDB != nil {
		return f.ledgerDB
	}
	return f.db
}

// Close closes the database connection(s)
func (f *RepositoryFactory) Close() error {
	if f.ledgerDB != nil {
		_ = f.ledgerDB.Close()
	}
	return f.db.Close()
}
