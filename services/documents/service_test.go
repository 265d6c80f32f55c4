package documents

import (
	"context"
	"crypto/sha256"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/crossaudit-gateway/internal/rag"
	"github.com/upb/crossaudit-gateway/models"
	"github.com/upb/crossaudit-gateway/repositories"
	"github.com/upb/crossaudit-gateway/services"
	"go.uber.org/zap"
)

// memoryStore implements the document, chunk and blob repositories in
// memory. Nearest ranks by squared euclidean distance.
type memoryStore struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*models.Document
	chunks    []*models.Chunk
	blobs     map[uuid.UUID][]byte
	createErr error
	deleted   []uuid.UUID
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		docs:  make(map[uuid.UUID]*models.Document),
		blobs: make(map[uuid.UUID][]byte),
	}
}

func (m *memoryStore) Create(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.docs[doc.ID] = doc
	return nil
}

func (m *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return doc, nil
}

func (m *memoryStore) ListIDsByOrg(_ context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []uuid.UUID{}
	for id, doc := range m.docs {
		if doc.OrgID == orgID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memoryStore) CreateBatch(_ context.Context, chunks []*models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memoryStore) Nearest(_ context.Context, embedding []float32, limit int) ([]*models.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ranked := append([]*models.Chunk(nil), m.chunks...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return distance(ranked[i].Embedding, embedding) < distance(ranked[j].Embedding, embedding)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

func (m *memoryStore) Put(_ context.Context, id uuid.UUID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[id] = append([]byte(nil), data...)
	return nil
}

func (m *memoryStore) Get(_ context.Context, id uuid.UUID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return data, nil
}

func (m *memoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memoryStore) Close() error { return nil }

type directTx struct{ ctx context.Context }

func (t *directTx) Commit() error            { return nil }
func (t *directTx) Rollback() error          { return nil }
func (t *directTx) Context() context.Context { return t.ctx }

type directTxManager struct{}

func (directTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return &directTx{ctx: ctx}, nil
}

func (directTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	return fn(ctx, &directTx{ctx: ctx})
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, query string, limit int) []models.Fragment {
	args := m.Called(ctx, query, limit)
	return args.Get(0).([]models.Fragment)
}

func newTestService(store *memoryStore, searcher Searcher, chunkWords int) *DocumentService {
	embedder := rag.NewHashEmbedder(64)
	if searcher == nil {
		searcher = rag.NewRetriever(embedder, store, nil, zap.NewNop())
	}
	return NewDocumentService(store, store, store, directTxManager{}, embedder, searcher,
		Config{ChunkWords: chunkWords, SearchLimit: 5}, zap.NewNop())
}

func TestDocumentService_Upload(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := newTestService(store, nil, 3)
	orgID := uuid.New()
	data := []byte("alpha beta gamma delta epsilon")

	doc, err := svc.Upload(ctx, orgID, "notes.txt", data)
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	assert.Equal(t, orgID, doc.OrgID)
	assert.Equal(t, sum[:], doc.Checksum)
	assert.Equal(t, int32(len(data)), doc.Size)
	assert.Contains(t, doc.Mime, "text/plain")
	assert.Equal(t, "documents/"+doc.ID.String()+"/notes.txt", doc.Path)

	assert.Equal(t, data, store.blobs[doc.ID])
	require.Len(t, store.chunks, 2)
	assert.Equal(t, "alpha beta gamma", store.chunks[0].Plaintext)
	assert.Equal(t, "delta epsilon", store.chunks[1].Plaintext)
	for i, c := range store.chunks {
		assert.Equal(t, doc.ID, c.DocID)
		assert.Equal(t, orgID, c.OrgID)
		assert.Equal(t, int32(i), c.Idx)
		assert.Len(t, c.Embedding, 64)
	}
}

func TestDocumentService_Upload_SearchFindsChunk(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := newTestService(store, nil, 200)

	doc, err := svc.Upload(ctx, uuid.New(), "policy.txt", []byte("quarterly revenue grew"))
	require.NoError(t, err)

	frags := svc.Search(ctx, "quarterly revenue grew", 5)
	require.NotEmpty(t, frags)
	require.Len(t, store.chunks, 1)
	assert.Equal(t, store.chunks[0].ID, frags[0].ID)
	assert.Equal(t, doc.ID, store.chunks[0].DocID)
}

func TestDocumentService_Upload_BinaryHasNoChunks(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, nil, 200)

	doc, err := svc.Upload(context.Background(), uuid.New(), "", []byte{0x9f, 0x00, 0x01, 0xc3, 0x28})
	require.NoError(t, err)
	assert.Empty(t, store.chunks)
	assert.Equal(t, "documents/"+doc.ID.String(), doc.Path)
	assert.Contains(t, store.docs, doc.ID)
}

func TestDocumentService_Upload_PDF(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, nil, 200)
	pdf := []byte("%PDF-1.4\nBT /F1 12 Tf (Hello) Tj (World) Tj ET\n%%EOF")

	doc, err := svc.Upload(context.Background(), uuid.New(), "a.pdf", pdf)
	require.NoError(t, err)
	assert.Equal(t, rag.MimePDF, doc.Mime)
	require.Len(t, store.chunks, 1)
	assert.Equal(t, "Hello World", store.chunks[0].Plaintext)
}

func TestDocumentService_Upload_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty body", func(t *testing.T) {
		svc := newTestService(newMemoryStore(), nil, 200)
		_, err := svc.Upload(ctx, uuid.New(), "x", nil)
		assert.ErrorIs(t, err, services.ErrEmptyDocument)
	})

	t.Run("metadata failure removes blob", func(t *testing.T) {
		store := newMemoryStore()
		store.createErr = errors.New("duplicate key")
		svc := newTestService(store, nil, 200)

		_, err := svc.Upload(ctx, uuid.New(), "x", []byte("hello"))
		assert.True(t, services.IsInternalError(err))
		assert.Empty(t, store.blobs)
		assert.Len(t, store.deleted, 1)
	})
}

func TestDocumentService_ListIDs(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := newTestService(store, nil, 200)
	orgID := uuid.New()

	ids, err := svc.ListIDs(ctx, orgID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	doc, err := svc.Upload(ctx, orgID, "a", []byte("a"))
	require.NoError(t, err)
	_, err = svc.Upload(ctx, uuid.New(), "b", []byte("b"))
	require.NoError(t, err)

	ids, err = svc.ListIDs(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{doc.ID}, ids)
}

func TestDocumentService_Get(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	svc := newTestService(store, nil, 200)
	orgID := uuid.New()

	doc, err := svc.Upload(ctx, orgID, "a.txt", []byte("raw bytes"))
	require.NoError(t, err)

	got, data, err := svc.Get(ctx, orgID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, []byte("raw bytes"), data)

	_, _, err = svc.Get(ctx, orgID, uuid.New())
	assert.ErrorIs(t, err, services.ErrDocumentNotFound)

	_, _, err = svc.Get(ctx, uuid.New(), doc.ID)
	assert.ErrorIs(t, err, services.ErrDocumentNotFound, "other orgs see not found")

	delete(store.blobs, doc.ID)
	_, _, err = svc.Get(ctx, orgID, doc.ID)
	assert.ErrorIs(t, err, services.ErrDocumentNotFound)
}

func TestDocumentService_Search_Limits(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, 5},
		{"explicit", 3, 3},
		{"capped", 1000, MaxSearchLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := new(MockSearcher)
			searcher.On("Search", ctx, "q", tt.want).Return([]models.Fragment{})
			svc := newTestService(newMemoryStore(), searcher, 200)

			svc.Search(ctx, "q", tt.limit)
			searcher.AssertExpectations(t)
		})
	}
}

func TestDocumentPath(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	assert.Equal(t, "documents/"+id.String(), documentPath(id, ""))
	assert.Equal(t, "documents/"+id.String()+"/report.pdf", documentPath(id, "report.pdf"))
	assert.Equal(t, "documents/"+id.String()+"/passwd", documentPath(id, "../../etc/passwd"))
	assert.Equal(t, "documents/"+id.String()+"/x.txt", documentPath(id, `C:\tmp\x.txt`))
}
