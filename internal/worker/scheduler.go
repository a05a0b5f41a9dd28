package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ArowuTest/uptime-rewards-backend/internal/services"
	"golang.org/x/exp/slog"
)

// SessionJobs is what the scheduler runs on every tick
type SessionJobs interface {
	AccrueActiveSessions(ctx context.Context) (services.AccrualSummary, error)
	CloseStaleSessions(ctx context.Context) (services.SweepSummary, error)
}

// Scheduler runs periodic accrual and stale sweeps in the background
type Scheduler struct {
	jobs            SessionJobs
	accrualInterval time.Duration
	sweepInterval   time.Duration
	wg              sync.WaitGroup
}

// NewScheduler creates a new Scheduler
func NewScheduler(jobs SessionJobs, accrualInterval, sweepInterval time.Duration) *Scheduler {
	return &Scheduler{
		jobs:            jobs,
		accrualInterval: accrualInterval,
		sweepInterval:   sweepInterval,
	}
}

// Start launches both loops. They stop when ctx is cancelled; Wait blocks until then.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, "accrual", s.accrualInterval, s.runAccrual)
	go s.loop(ctx, "sweep", s.sweepInterval, s.runSweep)
	slog.Info("Session scheduler started", "accrualInterval", s.accrualInterval, "sweepInterval", s.sweepInterval)
}

// Wait blocks until both loops have returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session scheduler loop stopped", "job", name)
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

func (s *Scheduler) runAccrual(ctx context.Context) {
	start := time.Now()
	summary, err := s.jobs.AccrueActiveSessions(ctx)
	if err != nil {
		slog.Error("Accrual run had failures", "error", err,
			"scanned", summary.Scanned, "failed", summary.Failed)
	}
	slog.Info("Accrual run finished",
		"scanned", summary.Scanned, "paid", summary.Paid, "skipped", summary.Skipped,
		"duplicates", summary.Duplicates, "pointsPaid", summary.PointsPaid, "took", time.Since(start))
}

func (s *Scheduler) runSweep(ctx context.Context) {
	start := time.Now()
	summary, err := s.jobs.CloseStaleSessions(ctx)
	if err != nil {
		slog.Error("Stale sweep had failures", "error", err,
			"scanned", summary.Scanned, "failed", summary.Failed)
	}
	slog.Info("Stale sweep finished",
		"scanned", summary.Scanned, "closed", summary.Closed, "duplicates", summary.Duplicates,
		"pointsPaid", summary.PointsPaid, "took", time.Since(start))
}
