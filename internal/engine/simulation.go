package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/talgya/factions/internal/policy"
	"github.com/talgya/factions/internal/social"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// Event is a notable occurrence in the world.
type Event struct {
	Tick        uint64         `json:"tick" db:"tick"`
	Description string         `json:"description" db:"description"`
	Category    string         `json:"category" db:"category"` // "faction", "war", "diplomacy", "policy", ...
	Meta        map[string]any `json:"meta,omitempty" db:"-"`
}

// Simulation owns the policy directory and turns policy changes into a
// stream of world events.
type Simulation struct {
	Dir      *policy.Directory
	Profiles *social.Profiles

	lastTick atomic.Uint64

	mu      sync.RWMutex
	events  []Event
	unsaved []Event
	subs    map[int]chan Event
	nextSub int

	changes *policy.Subscription
}

// NewSimulation wraps dir. Every policy change except routine attitude
// updates is recorded as an event.
func NewSimulation(dir *policy.Directory, profiles *social.Profiles) *Simulation {
	if profiles == nil {
		profiles = social.NewProfiles()
	}
	s := &Simulation{
		Dir:      dir,
		Profiles: profiles,
		subs:     make(map[int]chan Event),
	}
	s.changes = dir.Hub().SubscribeAll(s.onPolicyChange)
	return s
}

// Close detaches the simulation from the directory and closes all event
// subscriptions.
func (s *Simulation) Close() {
	s.changes.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 { return s.lastTick.Load() }

// SetTick restores the tick after loading a saved world.
func (s *Simulation) SetTick(t uint64) { s.lastTick.Store(t) }

// TickMinute runs every tick.
func (s *Simulation) TickMinute(tick uint64) {
	s.lastTick.Store(tick)
}

// TickDay logs a daily report.
func (s *Simulation) TickDay(tick uint64) {
	st := s.Status()
	slog.Info("daily report",
		"tick", tick,
		"time", SimTime(tick),
		"factions", st.Factions,
		"wars", st.Wars,
		"treaties", st.Treaties,
		"events", st.Events,
	)
}

// TickWeek runs every sim-week: attitude drift, then wars and treaties.
func (s *Simulation) TickWeek(tick uint64) {
	s.lastTick.Store(tick)
	drifted := s.driftAttitudes()
	s.processDiplomacy(tick)

	if drifted > 0 {
		s.EmitEvent(Event{
			Tick:        tick,
			Description: fmt.Sprintf("Old grudges and alliances fade across %d relations", drifted),
			Category:    "diplomacy",
		})
	}
	slog.Info("weekly summary", "tick", tick, "time", SimTime(tick), "drifted", drifted)
}

// CreateFaction founds a new faction and records the event.
func (s *Simulation) CreateFaction(name string) error {
	if err := s.Dir.CreateFaction(name); err != nil {
		return err
	}
	s.EmitEvent(Event{
		Tick:        s.CurrentTick(),
		Description: fmt.Sprintf("%s is founded", name),
		Category:    "faction",
		Meta:        map[string]any{"faction": name},
	})
	return nil
}

// Status summarizes the world.
type Status struct {
	Tick     uint64       `json:"tick"`
	SimTime  string       `json:"sim_time"`
	Factions int          `json:"factions"`
	Wars     int          `json:"wars"`
	Treaties int          `json:"treaties"`
	Events   int          `json:"events"`
	Policies policy.Stats `json:"policies"`
}

// Status counts factions, active wars and trade treaties.
func (s *Simulation) Status() Status {
	tick := s.CurrentTick()
	st := Status{
		Tick:     tick,
		SimTime:  SimTime(tick),
		Policies: s.Dir.Stats(),
	}
	names := s.Dir.ListFactions()
	st.Factions = len(names)
	forEachPair(names, func(a, b string) {
		if w, err := policy.GetAs[*social.War](s.Dir, social.TypeWar, a, b); err == nil && w.AtWar {
			st.Wars++
		}
		if t, err := policy.GetAs[*social.Treaty](s.Dir, social.TypeTreaty, a, b); err == nil && t.Trade {
			st.Treaties++
		}
	})
	s.mu.RLock()
	st.Events = len(s.events)
	s.mu.RUnlock()
	return st
}

// EmitEvent appends to the event log and fans out to subscribers.
// Slow subscribers miss events rather than block the simulation.
func (s *Simulation) EmitEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	s.unsaved = append(s.unsaved, e)
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Events returns up to limit of the most recent events, oldest first.
// A limit of zero or less returns the whole log.
func (s *Simulation) Events(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out
}

// TakeUnsaved returns the events emitted since the last call.
func (s *Simulation) TakeUnsaved() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.unsaved
	s.unsaved = nil
	return out
}

// Subscribe returns a channel receiving every new event.
func (s *Simulation) Subscribe() (int, <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	ch := make(chan Event, 64)
	s.subs[s.nextSub] = ch
	return s.nextSub, ch
}

// Unsubscribe closes the channel returned by Subscribe.
func (s *Simulation) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Simulation) onPolicyChange(c policy.Change) error {
	e := Event{
		Tick: s.CurrentTick(),
		Meta: map[string]any{"type": string(c.Type), "kind": c.Kind.String(), "first": c.First},
	}
	if c.Second != "" {
		e.Meta["second"] = c.Second
	}

	switch v := c.Value.(type) {
	case *social.Attitude:
		return nil
	case *social.War:
		e.Category = "war"
		if v.AtWar {
			e.Description = fmt.Sprintf("War breaks out between %s and %s", c.First, c.Second)
		} else {
			e.Description = fmt.Sprintf("%s and %s make peace", c.First, c.Second)
		}
	case *social.Treaty:
		e.Category = "diplomacy"
		switch {
		case v.Trade && v.Defense:
			e.Description = fmt.Sprintf("%s and %s seal a trade and defense pact", c.First, c.Second)
		case v.Trade:
			e.Description = fmt.Sprintf("%s and %s sign a trade treaty", c.First, c.Second)
		case v.Defense:
			e.Description = fmt.Sprintf("%s and %s sign a defense pact", c.First, c.Second)
		default:
			e.Description = fmt.Sprintf("The treaty between %s and %s lapses", c.First, c.Second)
		}
	case *social.Embargo:
		e.Category = "economy"
		if v.Active {
			e.Description = fmt.Sprintf("%s embargoes %s", c.First, c.Second)
		} else {
			e.Description = fmt.Sprintf("%s lifts its embargo on %s", c.First, c.Second)
		}
	default:
		e.Category = "policy"
		e.Description = fmt.Sprintf("Policy %s changed", policy.Slot{Type: c.Type, Kind: c.Kind, First: c.First, Second: c.Second})
	}
	s.EmitEvent(e)
	return nil
}

// forEachPair calls fn once for each unordered pair of distinct names.
func forEachPair(names []string, fn func(a, b string)) {
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			fn(names[i], names[j])
		}
	}
}
