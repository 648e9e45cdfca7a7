package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Result summarizes one run of a job.
type Result struct {
	Activities int // distinct activities in scope
	Scanned    int // subjects recomputed
	Published  int // events sent to subscribers
}

// Job is a fixed-interval task.
type Job struct {
	Name     string
	Interval time.Duration

	// Idle reports that there is nothing to do; the tick is skipped without calling Run.
	Idle func() bool
	Run  func(ctx context.Context) (Result, error)
}

// Scheduler runs each job on its own ticker. A run is bounded by the job's interval so a slow
// backend cannot stack ticks.
type Scheduler struct {
	jobs   []Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	logger *zap.Logger
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

func (s *Scheduler) AddJob(job Job) {
	if job.Interval <= 0 {
		job.Interval = time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = append(s.jobs, job)
	s.logger.Info("job registered", zap.String("job", job.Name), zap.Duration("interval", job.Interval))
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(job)
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels running jobs and waits for their loops to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	failures := s.tick(s.ctx, job, 0)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			failures = s.tick(s.ctx, job, failures)
		}
	}
}

// tick runs job once and returns the updated count of consecutive failures.
func (s *Scheduler) tick(ctx context.Context, job Job, failures int) int {
	if job.Idle != nil && job.Idle() {
		return failures
	}

	runCtx, cancel := context.WithTimeout(ctx, job.Interval)
	defer cancel()

	start := time.Now()
	res, err := job.Run(runCtx)
	fields := []zap.Field{
		zap.String("job", job.Name),
		zap.Duration("duration", time.Since(start)),
		zap.Int("activities", res.Activities),
		zap.Int("scanned", res.Scanned),
		zap.Int("published", res.Published),
	}

	if err != nil {
		failures++
		s.logger.Warn("job run failed", append(fields, zap.Int("consecutive_failures", failures), zap.Error(err))...)
		return failures
	}
	if failures > 0 {
		s.logger.Info("job recovered", append(fields, zap.Int("after_failures", failures))...)
	} else if res.Published > 0 {
		s.logger.Debug("job run", fields...)
	}
	return 0
}

// RunOnce runs every non-idle job once with ctx and joins their errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	var errs []error
	for _, job := range jobs {
		if job.Idle != nil && job.Idle() {
			continue
		}
		if _, err := job.Run(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name, err))
		}
	}
	return errors.Join(errs...)
}
