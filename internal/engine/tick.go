// Package engine provides the tick-based simulation loop that drives
// faction diplomacy.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// TickSchedule defines when each system runs relative to the tick counter.
const (
	TicksPerSimHour   = 60    // 60 ticks = 1 sim-hour
	TicksPerSimDay    = 1440  // 24 hours × 60
	TicksPerSimWeek   = 10080 // 7 days × 1440
	TicksPerSimSeason = 90000 // ~62.5 days
)

// Engine drives the simulation forward.
type Engine struct {
	Interval time.Duration // Base tick interval (default 1 second)

	tick    atomic.Uint64
	running atomic.Bool

	// Callbacks for each tick layer, populated during setup.
	OnTick   func(tick uint64) // Every tick (sim-minute)
	OnHour   func(tick uint64) // Every 60 ticks
	OnDay    func(tick uint64) // Every 1440 ticks
	OnWeek   func(tick uint64) // Every 10080 ticks
	OnSeason func(tick uint64) // Every ~90000 ticks
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	return &Engine{Interval: time.Second}
}

// Tick returns the current tick counter.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// SetTick restores the counter, typically from a saved world.
func (e *Engine) SetTick(t uint64) { e.tick.Store(t) }

// Running reports whether Run is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Run starts the simulation loop. Blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick(), "interval", e.Interval)

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "tick", e.Tick())
			return
		case <-ticker.C:
			e.Step()
		}
	}
}

// Step advances the simulation by one tick.
func (e *Engine) Step() {
	t := e.tick.Add(1)

	if e.OnTick != nil {
		e.OnTick(t)
	}
	if t%TicksPerSimHour == 0 && e.OnHour != nil {
		e.OnHour(t)
	}
	if t%TicksPerSimDay == 0 && e.OnDay != nil {
		e.OnDay(t)
	}
	// Every sim-week: diplomatic cycles.
	if t%TicksPerSimWeek == 0 && e.OnWeek != nil {
		e.OnWeek(t)
	}
	if t%TicksPerSimSeason == 0 && e.OnSeason != nil {
		e.OnSeason(t)
	}
}

// SimTime returns a human-readable simulation time string from a tick number.
func SimTime(tick uint64) string {
	totalMinutes := tick
	minutes := totalMinutes % 60
	totalHours := totalMinutes / 60
	hours := totalHours % 24
	totalDays := totalHours / 24
	days := totalDays%90 + 1
	seasons := totalDays / 90
	season := seasons % 4
	years := seasons/4 + 1

	seasonNames := [4]string{"Spring", "Summer", "Autumn", "Winter"}

	return fmt.Sprintf("%s Day %d, %d:%02d Year %d",
		seasonNames[season], days, hours, minutes, years)
}
