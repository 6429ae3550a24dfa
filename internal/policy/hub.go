package policy

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Change describes a saved policy value. Second is empty for internal
// policies. Each subscriber gets its own copy of Value.
type Change struct {
	Type   TypeID
	Kind   Kind
	First  string
	Second string
	Value  Value
}

// Callback receives a change. An error is logged and counted; it neither
// undoes the save nor stops delivery to other subscribers.
type Callback func(Change) error

// Hub dispatches changes to subscribers synchronously, on the saving
// goroutine.
type Hub struct {
	mu     sync.RWMutex
	byType map[TypeID]map[uuid.UUID]Callback
	all    map[uuid.UUID]Callback

	failures atomic.Int64
	logger   *slog.Logger
}

// NewHub creates a hub with no subscribers.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		byType: make(map[TypeID]map[uuid.UUID]Callback),
		all:    make(map[uuid.UUID]Callback),
		logger: logger.With("component", "policy.hub"),
	}
}

// Subscription is the handle returned by Subscribe. Cancel removes it.
type Subscription struct {
	ID   uuid.UUID
	Type TypeID // Empty for SubscribeAll

	all  bool
	hub  *Hub
	once sync.Once
}

// Cancel stops delivery. It is safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() { s.hub.remove(s) })
}

// Subscribe registers cb for every save of type t.
func (h *Hub) Subscribe(t TypeID, cb Callback) *Subscription {
	sub := &Subscription{ID: uuid.New(), Type: t, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.byType[t]
	if !ok {
		subs = make(map[uuid.UUID]Callback)
		h.byType[t] = subs
	}
	subs[sub.ID] = cb
	return sub
}

// SubscribeAll registers cb for saves of every type.
func (h *Hub) SubscribeAll(cb Callback) *Subscription {
	sub := &Subscription{ID: uuid.New(), all: true, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[sub.ID] = cb
	return sub
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.all {
		delete(h.all, s.ID)
		return
	}
	subs := h.byType[s.Type]
	delete(subs, s.ID)
	if len(subs) == 0 {
		delete(h.byType, s.Type)
	}
}

// Subscribers returns how many callbacks would receive a change of type t.
func (h *Hub) Subscribers(t TypeID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byType[t]) + len(h.all)
}

// Failures returns the number of deliveries that returned an error or
// panicked since the hub was created.
func (h *Hub) Failures() int64 {
	return h.failures.Load()
}

// Notify delivers c to each current subscriber of c.Type exactly once and
// returns after all of them ran. Subscribers added or cancelled during
// delivery take effect on the next change.
func (h *Hub) Notify(c Change) {
	h.mu.RLock()
	targets := make([]Callback, 0, len(h.byType[c.Type])+len(h.all))
	for _, cb := range h.byType[c.Type] {
		targets = append(targets, cb)
	}
	for _, cb := range h.all {
		targets = append(targets, cb)
	}
	h.mu.RUnlock()

	for _, cb := range targets {
		delivery := c
		if c.Value != nil {
			delivery.Value = c.Value.Clone()
		}
		if err := h.deliver(cb, delivery); err != nil {
			h.failures.Add(1)
			h.logger.Error("policy subscriber failed",
				"type", c.Type,
				"first", c.First,
				"second", c.Second,
				"error", err,
			)
		}
	}
}

func (h *Hub) deliver(cb Callback, c Change) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return cb(c)
}
