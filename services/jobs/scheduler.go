package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/upb/crossaudit-gateway/internal/observability"
	"go.uber.org/zap"
)

// Job is one periodic task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. Overlapping ticks of the same job
// are skipped. Job failures and panics never stop the scheduler.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	metrics *observability.Metrics
	logger  *zap.Logger
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new job scheduler.
func NewScheduler(metrics *observability.Metrics, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		jobs:    make(map[string]cron.EntryID),
		metrics: metrics,
		logger:  logger,
	}
}

// Add schedules job. spec uses the standard five-field syntax or a
// descriptor such as "@hourly". An empty spec leaves the job unscheduled.
func (s *Scheduler) Add(ctx context.Context, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec == "" {
		s.logger.Info("job schedule not configured, skipping", zap.String("job", job.Name()))
		return nil
	}
	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %q already scheduled", job.Name())
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q for job %q: %w", spec, job.Name(), err)
	}

	id, err := s.cron.AddFunc(spec, func() {
		s.RunJob(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", job.Name(), err)
	}
	s.jobs[job.Name()] = id

	s.logger.Info("job scheduled", zap.String("job", job.Name()), zap.String("schedule", spec))
	return nil
}

// Start begins running scheduled jobs until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("job scheduler started", zap.Int("jobs", len(s.jobs)))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("job scheduler stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled time of the named job.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	entry := s.cron.Entry(id)
	if !entry.Valid() || entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}

// RunJob executes one tick of job and reports the outcome. It recovers
// panics so a broken job cannot take the process down.
func (s *Scheduler) RunJob(ctx context.Context, job Job) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %q panicked: %v", job.Name(), p)
		}
		s.metrics.RecordJobRun(job.Name(), err)
		if err != nil {
			s.logger.Error("job tick failed, will retry on next tick",
				zap.String("job", job.Name()),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
		}
	}()

	return job.Run(ctx)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
