package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/crossaudit-gateway/internal/observability"
	"github.com/upb/crossaudit-gateway/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

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

type MockBillingUsageRepository struct {
	mock.Mock
}

func (m *MockBillingUsageRepository) Upsert(ctx context.Context, usage *models.BillingUsage) error {
	return m.Called(ctx, usage).Error(0)
}

func (m *MockBillingUsageRepository) ListByOrg(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]*models.BillingUsage, error) {
	args := m.Called(ctx, orgID, from, to)
	if rows := args.Get(0); rows != nil {
		return rows.([]*models.BillingUsage), args.Error(1)
	}
	return nil, args.Error(1)
}

var fixedNow = time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC)

func TestBillingAggregator_Run(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	orgA, orgB := uuid.New(), uuid.New()

	t.Run("upserts one row per org", func(t *testing.T) {
		ledger := new(MockAuditLedgerRepository)
		usage := new(MockBillingUsageRepository)
		agg := NewBillingAggregator(ledger, usage, zap.NewNop())
		agg.now = func() time.Time { return fixedNow }

		ledger.On("SumTokensByOrg", ctx, day, day.AddDate(0, 0, 1)).
			Return(map[uuid.UUID]int64{orgA: 120, orgB: 7}, nil)
		usage.On("Upsert", ctx, mock.MatchedBy(func(u *models.BillingUsage) bool {
			return u.OrgID == orgA && u.Tokens == 120 && u.Date.Equal(day) && u.UpdatedAt.Equal(fixedNow)
		})).Return(nil).Once()
		usage.On("Upsert", ctx, mock.MatchedBy(func(u *models.BillingUsage) bool {
			return u.OrgID == orgB && u.Tokens == 7 && u.Date.Equal(day)
		})).Return(nil).Once()

		require.NoError(t, agg.Run(ctx))
		assert.Equal(t, BillingJobName, agg.Name())
		ledger.AssertExpectations(t)
		usage.AssertExpectations(t)
	})

	t.Run("re-running the same day upserts again", func(t *testing.T) {
		ledger := new(MockAuditLedgerRepository)
		usage := new(MockBillingUsageRepository)
		agg := NewBillingAggregator(ledger, usage, zap.NewNop())
		agg.now = func() time.Time { return fixedNow }

		ledger.On("SumTokensByOrg", ctx, day, day.AddDate(0, 0, 1)).
			Return(map[uuid.UUID]int64{orgA: 5}, nil)
		usage.On("Upsert", ctx, mock.Anything).Return(nil)

		require.NoError(t, agg.Run(ctx))
		require.NoError(t, agg.Run(ctx))
		usage.AssertNumberOfCalls(t, "Upsert", 2)
	})

	t.Run("sum failure aborts tick", func(t *testing.T) {
		ledger := new(MockAuditLedgerRepository)
		usage := new(MockBillingUsageRepository)
		agg := NewBillingAggregator(ledger, usage, zap.NewNop())
		agg.now = func() time.Time { return fixedNow }

		ledger.On("SumTokensByOrg", ctx, day, day.AddDate(0, 0, 1)).Return(nil, errors.New("db down"))

		err := agg.Run(ctx)
		assert.ErrorContains(t, err, "failed to sum ledger tokens")
		usage.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("upsert failure aborts tick", func(t *testing.T) {
		ledger := new(MockAuditLedgerRepository)
		usage := new(MockBillingUsageRepository)
		agg := NewBillingAggregator(ledger, usage, zap.NewNop())
		agg.now = func() time.Time { return fixedNow }

		ledger.On("SumTokensByOrg", ctx, day, day.AddDate(0, 0, 1)).
			Return(map[uuid.UUID]int64{orgA: 1, orgB: 2}, nil)
		usage.On("Upsert", ctx, mock.Anything).Return(errors.New("conflict")).Once()

		err := agg.Run(ctx)
		assert.ErrorContains(t, err, "failed to upsert usage")
		usage.AssertNumberOfCalls(t, "Upsert", 1)
	})
}

func TestLedgerSealer_Run(t *testing.T) {
	ctx := context.Background()

	ledger := new(MockAuditLedgerRepository)
	sealer := NewLedgerSealer(ledger, zap.NewNop())
	sealer.now = func() time.Time { return fixedNow }
	assert.Equal(t, SealJobName, sealer.Name())

	ledger.On("SealUnsealed", ctx, fixedNow).Return(int64(3), nil).Once()
	ledger.On("SealUnsealed", ctx, fixedNow).Return(int64(0), nil).Once()
	require.NoError(t, sealer.Run(ctx))
	require.NoError(t, sealer.Run(ctx), "sealing a sealed ledger is a no-op")

	failing := new(MockAuditLedgerRepository)
	failing.On("SealUnsealed", ctx, mock.Anything).Return(int64(0), errors.New("timeout"))
	err := NewLedgerSealer(failing, zap.NewNop()).Run(ctx)
	assert.ErrorContains(t, err, "failed to seal ledger")
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func TestScheduler_Add(t *testing.T) {
	ctx := context.Background()
	noop := funcJob{name: "noop", fn: func(context.Context) error { return nil }}

	tests := []struct {
		name      string
		schedule  string
		wantError bool
	}{
		{"descriptor", "@hourly", false},
		{"standard", "0 3 * * *", false},
		{"every", "@every 1m", false},
		{"empty", "", false},
		{"invalid", "invalid cron", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(nil, zap.NewNop())
			err := s.Add(ctx, tt.schedule, noop)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("duplicate", func(t *testing.T) {
		s := NewScheduler(nil, zap.NewNop())
		require.NoError(t, s.Add(ctx, "@hourly", noop))
		assert.ErrorContains(t, s.Add(ctx, "@daily", noop), "already scheduled")
	})
}

func TestScheduler_StartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	job := funcJob{name: "tick", fn: func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}}

	s := NewScheduler(nil, zap.NewNop())
	require.NoError(t, s.Add(ctx, "@every 1s", job))
	assert.Nil(t, s.NextRun("missing"))

	s.Start(ctx)
	assert.True(t, s.IsRunning())
	require.Eventually(t, func() bool { return s.NextRun("tick") != nil }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
	s.Stop()
}

func TestScheduler_RunJob(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.ErrorLevel)
	metrics := observability.NewMetrics(nil)
	s := NewScheduler(metrics, zap.New(core))

	ok := funcJob{name: "ok", fn: func(context.Context) error { return nil }}
	failing := funcJob{name: "failing", fn: func(context.Context) error { return errors.New("boom") }}
	panicking := funcJob{name: "panicking", fn: func(context.Context) error { panic("unexpected") }}

	assert.NoError(t, s.RunJob(ctx, ok))
	assert.EqualError(t, s.RunJob(ctx, failing), "boom")

	var err error
	assert.NotPanics(t, func() { err = s.RunJob(ctx, panicking) })
	assert.ErrorContains(t, err, "panicked")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "failing", logs.All()[0].ContextMap()["job"])
	assert.Equal(t, "panicking", logs.All()[1].ContextMap()["job"])
}

type stubSweeper struct {
	maxIdle time.Duration
	removed int
}

func (s *stubSweeper) Cleanup(maxIdle time.Duration) int {
	s.maxIdle = maxIdle
	return s.removed
}

func TestLimiterSweep_Run(t *testing.T) {
	sweeper := &stubSweeper{removed: 3}
	job := NewLimiterSweep(sweeper, time.Hour, zap.NewNop())

	assert.Equal(t, SweepJobName, job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, time.Hour, sweeper.maxIdle)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
}
