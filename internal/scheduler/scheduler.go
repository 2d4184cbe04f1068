// Package scheduler drives the fetch, normalize and insert cycle, either once
// or on a fixed interval until the process is told to stop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nadmax/tracksync/internal/dashboard"
	"github.com/nadmax/tracksync/internal/lock"
	"github.com/nadmax/tracksync/internal/metrics"
	"github.com/nadmax/tracksync/internal/notify"
	"github.com/nadmax/tracksync/internal/repository"
	"github.com/nadmax/tracksync/internal/task"
)

type Fetcher interface {
	FetchTasks(ctx context.Context) ([]task.RawTask, error)
}

type Recorder interface {
	Record(result dashboard.CycleResult)
}

type Scheduler struct {
	fetcher  Fetcher
	repo     repository.SnapshotRepository
	interval time.Duration
	now      func() time.Time
	locker   lock.Locker
	lockTTL  time.Duration
	recorder Recorder
	notifier notify.Notifier
}

type Option func(*Scheduler)

// WithClock replaces the source of the date stamped on rows.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func WithLocker(l lock.Locker, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = l
		s.lockTTL = ttl
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Scheduler) {
		s.notifier = n
	}
}

func New(fetcher Fetcher, repo repository.SnapshotRepository, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:  fetcher,
		repo:     repo,
		interval: interval,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RunOnce runs a single cycle and reports its error, if any.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	_, err := s.RunCycle(ctx)
	return err
}

// Run executes a cycle immediately and then one per interval until ctx is
// done. Cycle failures are logged and never stop the loop. Cycles never
// overlap: a tick that fires mid-cycle is held by the ticker and at most one
// such tick starts the next cycle as soon as the current one ends.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid interval %s", s.interval)
	}

	log.Printf("Scheduler started (interval: %s)", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		if _, err := s.RunCycle(ctx); err != nil {
			log.Printf("Cycle failed, next attempt in %s: %v", s.interval, err)
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	log.Println("Scheduler stopped")
	return nil
}

// RunCycle provisions the table, fetches tasks, normalizes them and appends
// the rows. Nothing is written unless every step before the insert succeeds.
func (s *Scheduler) RunCycle(ctx context.Context) (dashboard.CycleResult, error) {
	start := time.Now()
	result := dashboard.CycleResult{
		ID:        uuid.New().String(),
		StartedAt: s.now(),
	}

	log.Printf("Cycle %s started", result.ID)

	err := s.runCycle(ctx, &result)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
	}

	s.report(ctx, result)
	return result, err
}

func (s *Scheduler) runCycle(ctx context.Context, result *dashboard.CycleResult) error {
	if s.locker != nil {
		release, acquired, err := s.locker.TryAcquire(ctx, s.lockTTL)
		if err != nil {
			result.Outcome = dashboard.OutcomeLockFailed
			return err
		}
		if !acquired {
			result.Outcome = dashboard.OutcomeSkippedLocked
			return nil
		}

		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Printf("Cycle %s: failed to release lock: %v", result.ID, err)
			}
		}()
	}

	if err := s.repo.EnsureTable(ctx); err != nil {
		result.Outcome = dashboard.OutcomeDBFailed
		return err
	}

	raw, err := s.fetcher.FetchTasks(ctx)
	if err != nil {
		result.Outcome = dashboard.OutcomeFetchFailed
		return err
	}
	result.Fetched = len(raw)

	rows, skipped, err := task.Normalize(raw, result.StartedAt)
	result.Skipped = skipped
	if err != nil {
		result.Outcome = dashboard.OutcomeMalformed
		return err
	}

	inserted, err := s.repo.InsertRows(ctx, rows)
	if err != nil {
		result.Outcome = dashboard.OutcomeDBFailed
		return err
	}
	result.Inserted = inserted
	result.Outcome = dashboard.OutcomeSucceeded

	return nil
}

func (s *Scheduler) report(ctx context.Context, result dashboard.CycleResult) {
	switch result.Outcome {
	case dashboard.OutcomeSucceeded:
		log.Printf("Cycle %s completed: %d fetched, %d without project, %d rows inserted (%s)",
			result.ID, result.Fetched, result.Skipped, result.Inserted, result.Duration.Round(time.Millisecond))
		metrics.RecordLastSuccess(time.Now())
	case dashboard.OutcomeSkippedLocked:
		log.Printf("Cycle %s skipped: another instance holds the lock", result.ID)
	default:
		log.Printf("Cycle %s %s: %s", result.ID, result.Outcome, result.Error)
	}

	metrics.RecordCycle(string(result.Outcome), result.Duration, result.Fetched, result.Skipped, result.Inserted)

	if s.recorder != nil {
		s.recorder.Record(result)
	}

	if s.notifier != nil && result.Outcome.Failed() && !errors.Is(ctx.Err(), context.Canceled) {
		if err := s.notifier.NotifyFailure(ctx, result); err != nil {
			log.Printf("Cycle %s: failed to send failure alert: %v", result.ID, err)
		}
	}
}
