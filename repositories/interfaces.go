package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/models"
)

// ErrNotFound is returned when a requested row or blob does not exist.
var ErrNotFound = errors.New("not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// AuditLedgerRepository is the append-only audit ledger.
type AuditLedgerRepository interface {
	// Append inserts one entry with a single statement and returns its id.
	Append(ctx context.Context, entry *models.AuditEntry) (int64, error)

	// ListByOrg returns an organization's entries, newest first
	ListByOrg(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.AuditEntry, error)

	// SumTokensByOrg sums tokens per organization for entries in [start, end)
	SumTokensByOrg(ctx context.Context, start, end time.Time) (map[uuid.UUID]int64, error)

	// SealUnsealed flags every entry lacking trace.sealed and returns the count
	SealUnsealed(ctx context.Context, sealedAt time.Time) (int64, error)
}

// DocumentRepository handles document metadata
type DocumentRepository interface {
	// Create inserts a document row
	Create(ctx context.Context, doc *models.Document) error

	// GetByID retrieves a document by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)

	// ListIDsByOrg returns the ids of an organization's documents, oldest first
	ListIDsByOrg(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error)
}

// ChunkRepository stores document chunks and serves as the similarity index.
type ChunkRepository interface {
	// CreateBatch inserts chunks in order
	CreateBatch(ctx context.Context, chunks []*models.Chunk) error

	// Nearest returns up to limit chunks ordered by ascending vector distance
	Nearest(ctx context.Context, embedding []float32, limit int) ([]*models.Chunk, error)
}

// BillingUsageRepository handles the derived usage table
type BillingUsageRepository interface {
	// Upsert writes one row per (org, day), replacing an existing total
	Upsert(ctx context.Context, usage *models.BillingUsage) error

	// ListByOrg returns an organization's rows with date in [from, to], oldest first
	ListByOrg(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*models.BillingUsage, error)
}

// BlobStore holds raw document bytes keyed by document id.
type BlobStore interface {
	Put(ctx context.Context, id uuid.UUID, data []byte) error
	Get(ctx context.Context, id uuid.UUID) ([]byte, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Close() error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	AuditLedger  AuditLedgerRepository
	Documents    DocumentRepository
	Chunks       ChunkRepository
	BillingUsage BillingUsageRepository
}
