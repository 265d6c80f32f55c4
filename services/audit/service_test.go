package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/crossaudit-gateway/internal/observability"
	"github.com/upb/crossaudit-gateway/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockAuditLedgerRepository is a mock implementation of AuditLedgerRepository
type MockAuditLedgerRepository struct {
	mock.Mock
}

func (m *MockAuditLedgerRepository) Append(ctx context.Context, entry *models.AuditEntry) (int64, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuditLedgerRepository) ListByOrg(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.AuditEntry, error) {
	args := m.Called(ctx, orgID, limit, offset)
	if entries := args.Get(0); entries != nil {
		return entries.([]*models.AuditEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditLedgerRepository) SumTokensByOrg(ctx context.Context, start, end time.Time) (map[uuid.UUID]int64, error) {
	args := m.Called(ctx, start, end)
	if sums := args.Get(0); sums != nil {
		return sums.(map[uuid.UUID]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditLedgerRepository) SealUnsealed(ctx context.Context, sealedAt time.Time) (int64, error) {
	args := m.Called(ctx, sealedAt)
	return args.Get(0).(int64), args.Error(1)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestAuditService_Record(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("appends entry", func(t *testing.T) {
		repo := new(MockAuditLedgerRepository)
		metrics := observability.NewMetrics(nil)
		svc := NewAuditService(repo, metrics, zap.NewNop())

		entry := models.NewAuditEntry(orgID, "hello", "allow").WithResponse("hi there", 2)
		repo.On("Append", ctx, entry).Return(int64(7), nil)

		assert.True(t, svc.Record(ctx, entry))
		repo.AssertExpectations(t)
		assert.Equal(t, 0.0, counterValue(t, metrics.Registry(), "gateway_audit_failures_total"))
	})

	t.Run("swallows write failure", func(t *testing.T) {
		repo := new(MockAuditLedgerRepository)
		core, logs := observer.New(zapcore.ErrorLevel)
		metrics := observability.NewMetrics(nil)
		svc := NewAuditService(repo, metrics, zap.New(core))

		entry := models.NewAuditEntry(orgID, "what the heck", "block")
		repo.On("Append", ctx, entry).Return(int64(0), errors.New("connection refused"))

		assert.False(t, svc.Record(ctx, entry))
		assert.Equal(t, 1.0, counterValue(t, metrics.Registry(), "gateway_audit_failures_total"))
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "failed to append audit entry", logs.All()[0].Message)
		assert.Equal(t, "block", logs.All()[0].ContextMap()["action"])
	})
}

func TestAuditService_List(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	tests := []struct {
		name       string
		limit      int
		offset     int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", 0, 0, DefaultListLimit, 0},
		{"explicit", 10, 20, 10, 20},
		{"capped", 10000, 0, MaxListLimit, 0},
		{"negative offset", 5, -3, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockAuditLedgerRepository)
			svc := NewAuditService(repo, nil, zap.NewNop())

			want := []*models.AuditEntry{models.NewAuditEntry(orgID, "p", "allow")}
			repo.On("ListByOrg", ctx, orgID, tt.wantLimit, tt.wantOffset).Return(want, nil)

			got, err := svc.List(ctx, orgID, tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			repo.AssertExpectations(t)
		})
	}

	t.Run("repository error", func(t *testing.T) {
		repo := new(MockAuditLedgerRepository)
		svc := NewAuditService(repo, nil, zap.NewNop())
		repo.On("ListByOrg", ctx, orgID, DefaultListLimit, 0).Return(nil, errors.New("boom"))

		_, err := svc.List(ctx, orgID, 0, 0)
		assert.ErrorContains(t, err, "failed to list audit entries")
	})
}
