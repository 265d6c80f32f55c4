package documents

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/internal/rag"
	"github.com/upb/crossaudit-gateway/models"
	"github.com/upb/crossaudit-gateway/repositories"
	"github.com/upb/crossaudit-gateway/services"
	"go.uber.org/zap"
)

const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 50
)

// Searcher is the retrieval entry point exposed through the service.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) []models.Fragment
}

// Config tunes ingestion and search.
type Config struct {
	ChunkWords  int
	SearchLimit int
}

// DocumentService ingests raw documents and serves them back.
type DocumentService struct {
	docs     repositories.DocumentRepository
	chunks   repositories.ChunkRepository
	blobs    repositories.BlobStore
	txMgr    repositories.TransactionManager
	embedder rag.Embedder
	searcher Searcher
	config   Config
	logger   *zap.Logger
}

// NewDocumentService creates a new DocumentService instance
func NewDocumentService(
	docs repositories.DocumentRepository,
	chunks repositories.ChunkRepository,
	blobs repositories.BlobStore,
	txMgr repositories.TransactionManager,
	embedder rag.Embedder,
	searcher Searcher,
	config Config,
	logger *zap.Logger,
) *DocumentService {
	if config.ChunkWords <= 0 {
		config.ChunkWords = rag.DefaultChunkWords
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = DefaultSearchLimit
	}
	return &DocumentService{
		docs:     docs,
		chunks:   chunks,
		blobs:    blobs,
		txMgr:    txMgr,
		embedder: embedder,
		searcher: searcher,
		config:   config,
		logger:   logger,
	}
}

// Upload stores data as a new document of orgID: the raw bytes go to the
// blob store, the metadata row and its chunks are written in one
// transaction. A document without extractable text gets no chunks.
func (s *DocumentService) Upload(ctx context.Context, orgID uuid.UUID, name string, data []byte) (*models.Document, error) {
	if len(data) == 0 {
		return nil, services.ErrEmptyDocument
	}
	if len(data) > math.MaxInt32 {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "document too large", nil)
	}

	sum := sha256.Sum256(data)
	mime := mimetype.Detect(data).String()
	doc := models.NewDocument(orgID, "", mime, sum[:], int32(len(data)))
	doc.Path = documentPath(doc.ID, name)

	text := rag.Extract(mime, data)
	pieces := rag.Chunk(text, s.config.ChunkWords)
	embeddings, err := rag.EmbedAll(ctx, s.embedder, pieces)
	if err != nil {
		return nil, services.WrapInternal("failed to embed document", err)
	}
	chunks := make([]*models.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = models.NewChunk(doc, int32(i), piece, embeddings[i])
	}

	if err := s.blobs.Put(ctx, doc.ID, data); err != nil {
		return nil, services.WrapInternal("failed to store document", err)
	}

	err = services.WithTransaction(ctx, s.txMgr, func(ctx context.Context) error {
		if err := s.docs.Create(ctx, doc); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return s.chunks.CreateBatch(ctx, chunks)
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, doc.ID); delErr != nil {
			s.logger.Warn("failed to remove orphaned blob",
				zap.String("document_id", doc.ID.String()),
				zap.Error(delErr))
		}
		return nil, services.WrapInternal("failed to save document", err)
	}

	s.logger.Info("document ingested",
		zap.String("document_id", doc.ID.String()),
		zap.String("org_id", orgID.String()),
		zap.String("mime", mime),
		zap.Int32("size", doc.Size),
		zap.Int("chunks", len(chunks)))

	return doc, nil
}

// ListIDs returns the ids of an organization's documents.
func (s *DocumentService) ListIDs(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.docs.ListIDsByOrg(ctx, orgID)
	if err != nil {
		return nil, services.WrapInternal("failed to list documents", err)
	}
	return ids, nil
}

// Get returns a document and its raw bytes. Documents of other
// organizations are reported as not found.
func (s *DocumentService) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Document, []byte, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, services.ErrDocumentNotFound
		}
		return nil, nil, services.WrapInternal("failed to load document", err)
	}
	if doc.OrgID != orgID {
		return nil, nil, services.ErrDocumentNotFound
	}

	data, err := s.blobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Warn("document metadata without blob", zap.String("document_id", id.String()))
			return nil, nil, services.ErrDocumentNotFound
		}
		return nil, nil, services.WrapInternal("failed to read document", err)
	}
	return doc, data, nil
}

// Search runs retrieval for query. limit <= 0 selects the configured
// default; larger values are capped at MaxSearchLimit.
func (s *DocumentService) Search(ctx context.Context, query string, limit int) []models.Fragment {
	if limit <= 0 {
		limit = s.config.SearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return s.searcher.Search(ctx, query, limit)
}

func documentPath(id uuid.UUID, name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return fmt.Sprintf("documents/%s", id)
	}
	return fmt.Sprintf("documents/%s/%s", id, name)
}
