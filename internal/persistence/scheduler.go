package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/talgya/factions/internal/engine"
)

// Scheduler saves the world on a cron schedule such as "@every 5m" or
// "0 * * * *".
type Scheduler struct {
	db       *DB
	sim      *engine.Simulation
	schedule string

	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
	saves   int
}

// NewScheduler creates a snapshot scheduler. An empty schedule disables it.
func NewScheduler(db *DB, sim *engine.Simulation, schedule string) *Scheduler {
	return &Scheduler{
		db:       db,
		sim:      sim,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "persistence.scheduler"),
	}
}

// Start schedules the snapshot job and stops it when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("snapshot schedule not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("failed to schedule snapshots: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("snapshot scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce saves the world immediately.
func (s *Scheduler) RunOnce() {
	if err := s.db.SaveWorldState(s.sim); err != nil {
		s.logger.Error("scheduled snapshot failed", "error", err)
		return
	}
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
}

// Stop stops the scheduler and waits for a running snapshot to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		ctx := s.cron.Stop()
		s.mu.Unlock()
		<-ctx.Done()
		s.mu.Lock()
		s.running = false
		s.logger.Info("snapshot scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Saves returns the number of successful scheduled snapshots.
func (s *Scheduler) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// NextRun returns the next scheduled snapshot time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
