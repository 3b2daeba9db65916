// Package cron drives the orchestrator's two periodic sweeps: a
// kickoff sweep that recomputes the runnable frontier for every
// strand (catching goals that became unblocked without an explicit
// kickoff call — e.g. a task completed while the daemon was down),
// and a stale-session sweep that reaps sessions left dangling by a
// crash mid-kickoff. A tick loop fires two fixed jobs on their own
// cron expressions rather than an arbitrary set of named schedules.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/go-strand/internal/lifecycle"
	"github.com/basket/go-strand/internal/scheduler"
	"github.com/basket/go-strand/internal/store"
)

var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Config holds the dependencies for the periodic sweeps.
type Config struct {
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Lifecycle *lifecycle.Manager
	Logger    *slog.Logger

	// KickoffSweepCron and StaleSweepCron are 5-field cron expressions.
	// Empty strings fall back to "*/5 * * * *" and "*/15 * * * *".
	KickoffSweepCron string
	StaleSweepCron   string
}

// Scheduler runs the kickoff and stale-session sweeps on independent
// cron schedules until Stop is called.
type Scheduler struct {
	cfg Config

	kickoffSchedule cronlib.Schedule
	staleSchedule   cronlib.Schedule

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler parses the configured cron expressions and returns a
// Scheduler ready to Start. An invalid expression falls back to the
// default for that sweep and is logged.
func NewScheduler(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Logger = logger

	kickoffExpr := cfg.KickoffSweepCron
	if kickoffExpr == "" {
		kickoffExpr = "*/5 * * * *"
	}
	staleExpr := cfg.StaleSweepCron
	if staleExpr == "" {
		staleExpr = "*/15 * * * *"
	}

	kickoffSched, err := cronParser.Parse(kickoffExpr)
	if err != nil {
		logger.Warn("cron: invalid kickoff sweep expression, using default", "expr", kickoffExpr, "error", err)
		kickoffSched, _ = cronParser.Parse("*/5 * * * *")
	}
	staleSched, err := cronParser.Parse(staleExpr)
	if err != nil {
		logger.Warn("cron: invalid stale sweep expression, using default", "expr", staleExpr, "error", err)
		staleSched, _ = cronParser.Parse("*/15 * * * *")
	}

	return &Scheduler{cfg: cfg, kickoffSchedule: kickoffSched, staleSchedule: staleSched}
}

// Start begins both sweep loops in background goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.loop(ctx, s.kickoffSchedule, s.kickoffSweep)
	go s.loop(ctx, s.staleSchedule, s.staleSweep)
	s.cfg.Logger.Info("cron: sweeps started")
}

// Stop cancels both sweep loops and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.cfg.Logger.Info("cron: sweeps stopped")
}

func (s *Scheduler) loop(ctx context.Context, sched cronlib.Schedule, fire func(context.Context)) {
	defer s.wg.Done()
	for {
		now := time.Now()
		next := sched.Next(now)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			fire(ctx)
		}
	}
}

func (s *Scheduler) kickoffSweep(_ context.Context) {
	s.RunKickoffSweep()
}

func (s *Scheduler) staleSweep(ctx context.Context) {
	s.RunStaleSweep(ctx)
}

// RunKickoffSweep recomputes the runnable frontier for every strand.
// Exported so it can be triggered on demand (a manual "sweep now"
// operation) in addition to firing on its cron schedule.
func (s *Scheduler) RunKickoffSweep() {
	strands, err := s.cfg.Store.ListStrands()
	if err != nil {
		s.cfg.Logger.Error("cron: kickoff sweep failed to list strands", "error", err)
		return
	}
	for _, strand := range strands {
		results, err := s.cfg.Scheduler.KickoffUnblockedGoals(strand.ID)
		if err != nil {
			s.cfg.Logger.Warn("cron: kickoff sweep failed for strand", "strandId", strand.ID, "error", err)
			continue
		}
		for _, r := range results {
			if len(r.SpawnedSessions) > 0 {
				s.cfg.Logger.Info("cron: kickoff sweep spawned sessions", "strandId", strand.ID, "spawned", len(r.SpawnedSessions))
			}
		}
	}
}

// RunStaleSweep reaps sessions left dangling across every strand.
func (s *Scheduler) RunStaleSweep(ctx context.Context) {
	result, err := s.cfg.Lifecycle.CleanupStale(ctx, "")
	if err != nil {
		s.cfg.Logger.Error("cron: stale sweep failed", "error", err)
		return
	}
	if len(result.KilledSessions) > 0 {
		s.cfg.Logger.Info("cron: stale sweep reaped sessions", "count", len(result.KilledSessions))
	}
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
