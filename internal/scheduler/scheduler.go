// Package scheduler wires up the cron job that periodically reminds
// employers about applications stuck in a non-terminal status.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/config"
)

type reminder interface {
	RemindStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// Scheduler wraps robfig/cron and manages the reminder loop.
type Scheduler struct {
	cron       *cron.Cron
	chain      cron.Chain
	reminder   reminder
	spec       string
	staleAfter time.Duration
	batchSize  int
	log        *slog.Logger

	// startup tracks the pass launched by Start outside the cron loop.
	startup sync.WaitGroup
}

// New creates a Scheduler firing on cfg.Schedule. Overlapping runs are skipped.
func New(r reminder, cfg config.ReminderConfig, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cronLog)),
		chain:      cron.NewChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		reminder:   r,
		spec:       cfg.Schedule,
		staleAfter: cfg.StaleAfter,
		batchSize:  cfg.BatchSize,
		log:        logger,
	}
}

// Start registers the job and starts the scheduler. Also runs one reminder
// pass immediately so a restart does not delay reminders by a full period.
// The immediate pass shares the job's chain, so it never overlaps a tick.
func (s *Scheduler) Start(ctx context.Context) error {
	job := s.chain.Then(cron.FuncJob(func() { s.runReminders(ctx) }))
	if _, err := s.cron.AddJob(s.spec, job); err != nil {
		return fmt.Errorf("cron.AddJob: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", slog.String("spec", s.spec))

	s.startup.Add(1)
	go func() {
		defer s.startup.Done()
		job.Run()
	}()
	return nil
}

// Stop halts the scheduler. The returned context is done once every running
// reminder pass, including the startup one, has finished.
func (s *Scheduler) Stop() context.Context {
	cronDone := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.startup.Wait()
		cancel()
	}()
	s.log.Info("cron stopped")
	return ctx
}

func (s *Scheduler) runReminders(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	sent, err := s.reminder.RemindStale(ctx, s.staleAfter, s.batchSize)
	if err != nil {
		s.log.ErrorContext(ctx, "reminder cycle failed",
			slog.Int("sent", sent),
			slog.String("error", err.Error()),
		)
		return
	}
	s.log.InfoContext(ctx, "reminder cycle complete",
		slog.Int("sent", sent),
		slog.Duration("duration", time.Since(start)),
	)
}
