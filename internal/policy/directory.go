package policy

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
)

// Directory stores policy values for every faction and faction pair.
//
// A single lock guards the faction set and all three mappings. Faction
// creation builds its slots in a scratch store and publishes them together
// with the faction name, so readers never see a faction with missing slots.
// Saves are serialized by the same lock and notify subscribers after it is
// released, before returning.
//
// Generators run while the lock is held and must only use the View they
// are given.
type Directory struct {
	mu       sync.RWMutex
	factions map[string]struct{}
	order    []string // Creation order
	data     *store

	registry *Registry
	hub      *Hub
	logger   *slog.Logger
}

// Options configures a Directory. Zero values create a private registry,
// hub and the default logger.
type Options struct {
	Logger   *slog.Logger
	Registry *Registry
	Hub      *Hub
}

// New creates an empty directory.
func New(opts Options) *Directory {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry(logger)
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(logger)
	}
	return &Directory{
		factions: make(map[string]struct{}),
		data:     newStore(),
		registry: opts.Registry,
		hub:      opts.Hub,
		logger:   logger.With("component", "policy.directory"),
	}
}

// Registry returns the policy type registry backing the directory.
func (d *Directory) Registry() *Registry { return d.registry }

// Hub returns the change notification hub.
func (d *Directory) Hub() *Hub { return d.hub }

// Subscribe is shorthand for d.Hub().Subscribe.
func (d *Directory) Subscribe(t TypeID, cb Callback) *Subscription {
	return d.hub.Subscribe(t, cb)
}

// RegisterType registers a policy type and backfills it across existing
// factions and pairs. It returns the number of slots filled.
func (d *Directory) RegisterType(desc Descriptor) (int, error) {
	if err := d.registry.Register(desc); err != nil {
		return 0, err
	}
	n, err := d.Backfill(desc.ID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.logger.Info("policy type backfilled", "type", desc.ID, "kind", desc.Kind, "slots", n)
	}
	return n, nil
}

// Backfill fills every missing slot of type t for the existing factions
// and returns how many it filled. Existing values are never replaced, so
// running it again is a no-op.
func (d *Directory) Backfill(t TypeID) (int, error) {
	desc, err := d.registry.Lookup(t)
	if err != nil {
		return 0, fmt.Errorf("backfill: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.backfillLocked(desc)
	if err != nil {
		return n, fmt.Errorf("backfill: %w", err)
	}
	return n, nil
}

func (d *Directory) backfillLocked(desc Descriptor) (int, error) {
	v := &view{d: d}
	n := 0
	var firstErr error
	fill := func(sl Slot) {
		if firstErr != nil {
			return
		}
		if _, ok := d.data.get(sl); ok {
			return
		}
		val, err := desc.generate(v, sl, d.logger)
		if err != nil {
			firstErr = err
			return
		}
		if d.data.put(sl, val, false) {
			n++
		}
	}

	switch desc.Kind {
	case Internal:
		for _, f := range d.order {
			fill(Slot{Type: desc.ID, Kind: Internal, First: f})
		}
	case OneWay:
		for _, a := range d.order {
			for _, b := range d.order {
				if a != b {
					fill(Slot{Type: desc.ID, Kind: OneWay, First: a, Second: b})
				}
			}
		}
	case TwoWay:
		for i, a := range d.order {
			for _, b := range d.order[i+1:] {
				k := Unordered(a, b)
				fill(Slot{Type: desc.ID, Kind: TwoWay, First: k.First, Second: k.Second})
			}
		}
	}
	return n, firstErr
}

// CreateFaction adds a faction and fills its internal slots, the one-way
// slots in both directions and the two-way slot with every other faction,
// for every registered type.
func (d *Directory) CreateFaction(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("create faction %q: %w", name, ErrInvalidFaction)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.factions[name]; ok {
		err := fmt.Errorf("create faction %q: %w", name, ErrDuplicateFaction)
		d.logger.Error("faction already exists", "faction", name)
		return err
	}

	scratch := newStore()
	v := &view{d: d, pending: scratch, name: name}
	descs := d.registry.Descriptors()
	var genErr error
	put := func(desc Descriptor, sl Slot) {
		if genErr != nil {
			return
		}
		val, err := desc.generate(v, sl, d.logger)
		if err != nil {
			genErr = err
			return
		}
		scratch.put(sl, val, false)
	}

	// Internal slots first so pair generators can read them through the view.
	for _, desc := range descs {
		if desc.Kind != Internal {
			continue
		}
		sl := Slot{Type: desc.ID, Kind: Internal, First: name}
		put(desc, sl)
	}
	for _, desc := range descs {
		switch desc.Kind {
		case OneWay:
			for _, other := range d.order {
				out := Slot{Type: desc.ID, Kind: OneWay, First: name, Second: other}
				put(desc, out)
				in := Slot{Type: desc.ID, Kind: OneWay, First: other, Second: name}
				put(desc, in)
			}
		case TwoWay:
			for _, other := range d.order {
				k := Unordered(name, other)
				sl := Slot{Type: desc.ID, Kind: TwoWay, First: k.First, Second: k.Second}
				put(desc, sl)
			}
		}
	}

	if genErr != nil {
		return fmt.Errorf("create faction %q: %w", name, genErr)
	}

	d.data.merge(scratch)
	d.factions[name] = struct{}{}
	d.order = append(d.order, name)

	in, ow, tw := scratch.count()
	d.logger.Info("faction created",
		"faction", name,
		"factions", len(d.order),
		"internal", in,
		"one_way", ow,
		"two_way", tw,
	)
	return nil
}

// ListFactions returns the faction names in creation order.
func (d *Directory) ListFactions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// HasFaction reports whether name exists.
func (d *Directory) HasFaction(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.factions[name]
	return ok
}

// Stats counts the stored values per kind.
type Stats struct {
	Factions int `json:"factions"`
	Types    int `json:"types"`
	Internal int `json:"internal"`
	OneWay   int `json:"one_way"`
	TwoWay   int `json:"two_way"`
}

// Stats returns the current slot counts.
func (d *Directory) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	in, ow, tw := d.data.count()
	return Stats{
		Factions: len(d.order),
		Types:    d.registry.Len(),
		Internal: in,
		OneWay:   ow,
		TwoWay:   tw,
	}
}

// GetInternal returns a copy of faction's value of internal type t.
func (d *Directory) GetInternal(t TypeID, faction string) (Value, error) {
	return d.get(t, Internal, []string{faction})
}

// GetOneWay returns a copy of from's value of one-way type t toward to.
func (d *Directory) GetOneWay(t TypeID, from, to string) (Value, error) {
	return d.get(t, OneWay, []string{from, to})
}

// GetTwoWay returns a copy of the shared value of two-way type t for a and
// b, in either order.
func (d *Directory) GetTwoWay(t TypeID, a, b string) (Value, error) {
	return d.get(t, TwoWay, []string{a, b})
}

// SaveInternal replaces faction's value of internal type t.
func (d *Directory) SaveInternal(t TypeID, faction string, v Value) error {
	return d.save(t, Internal, []string{faction}, v)
}

// SaveOneWay replaces from's value of one-way type t toward to.
func (d *Directory) SaveOneWay(t TypeID, from, to string, v Value) error {
	return d.save(t, OneWay, []string{from, to}, v)
}

// SaveTwoWay replaces the shared value of two-way type t for a and b.
func (d *Directory) SaveTwoWay(t TypeID, a, b string, v Value) error {
	return d.save(t, TwoWay, []string{a, b}, v)
}

// anyKind lets resolveLocked take the kind from the registered type.
const anyKind Kind = 255

// resolveLocked validates a request and returns the addressed slot. The
// caller holds d.mu.
func (d *Directory) resolveLocked(t TypeID, want Kind, factions []string) (Descriptor, Slot, error) {
	for _, f := range factions {
		if _, ok := d.factions[f]; !ok {
			return Descriptor{}, Slot{}, fmt.Errorf("faction %q: %w", f, ErrUnknownFaction)
		}
	}
	desc, err := d.registry.Lookup(t)
	if err != nil {
		return Descriptor{}, Slot{}, err
	}
	if want != anyKind && desc.Kind != want {
		return Descriptor{}, Slot{}, fmt.Errorf("policy type %q is %s, not %s: %w", t, desc.Kind, want, ErrKindMismatch)
	}
	if len(factions) != desc.Kind.Factions() {
		return Descriptor{}, Slot{}, fmt.Errorf("policy type %q is %s and takes %d factions, got %d: %w",
			t, desc.Kind, desc.Kind.Factions(), len(factions), ErrKindMismatch)
	}

	sl := Slot{Type: t, Kind: desc.Kind, First: factions[0]}
	if desc.Kind != Internal {
		if factions[0] == factions[1] {
			return Descriptor{}, Slot{}, fmt.Errorf("faction %q: %w", factions[0], ErrSelfPair)
		}
		sl.Second = factions[1]
	}
	return desc, sl, nil
}

func (d *Directory) get(t TypeID, want Kind, factions []string) (Value, error) {
	d.mu.RLock()
	desc, sl, err := d.resolveLocked(t, want, factions)
	if err != nil {
		d.mu.RUnlock()
		return nil, fmt.Errorf("get %s: %w", t, err)
	}
	v, ok := d.data.get(sl)
	if ok {
		v = v.Clone()
	}
	d.mu.RUnlock()

	if ok {
		return v, nil
	}
	v, err = d.fill(desc, sl)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", t, err)
	}
	return v, nil
}

// fill backfills a single slot found missing on read.
func (d *Directory) fill(desc Descriptor, sl Slot) (Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := d.data.get(sl); ok {
		return v.Clone(), nil
	}
	v, err := desc.generate(&view{d: d}, sl, d.logger)
	if err != nil {
		return nil, err
	}
	d.data.put(sl, v, false)
	d.logger.Debug("slot filled on read", "slot", sl.String())
	return v.Clone(), nil
}

func (d *Directory) save(t TypeID, want Kind, factions []string, v Value) error {
	if v == nil {
		return fmt.Errorf("save %s: nil value: %w", t, ErrValueType)
	}

	d.mu.Lock()
	desc, sl, err := d.resolveLocked(t, want, factions)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("save %s: %w", t, err)
	}
	if got, exp := reflect.TypeOf(v), reflect.TypeOf(desc.Default()); got != exp {
		d.mu.Unlock()
		return fmt.Errorf("save %s: got %s, want %s: %w", t, got, exp, ErrValueType)
	}
	stored := v.Clone()
	d.data.put(sl, stored, true)
	d.mu.Unlock()

	d.logger.Debug("policy saved", "slot", sl.String())
	d.hub.Notify(Change{
		Type:   t,
		Kind:   sl.Kind,
		First:  sl.First,
		Second: sl.Second,
		Value:  stored,
	})
	return nil
}

// view reads the directory without locking; it is only handed out while
// d.mu is held. pending holds the slots of a faction being created.
type view struct {
	d       *Directory
	pending *store
	name    string
}

func (v *view) Factions() []string {
	out := make([]string, 0, len(v.d.order)+1)
	out = append(out, v.d.order...)
	if v.name != "" {
		out = append(out, v.name)
	}
	return out
}

func (v *view) lookup(sl Slot) (Value, bool) {
	if v.pending != nil {
		if val, ok := v.pending.get(sl); ok {
			return val.Clone(), true
		}
	}
	if val, ok := v.d.data.get(sl); ok {
		return val.Clone(), true
	}
	return nil, false
}

func (v *view) Internal(t TypeID, faction string) (Value, bool) {
	return v.lookup(Slot{Type: t, Kind: Internal, First: faction})
}

func (v *view) OneWay(t TypeID, from, to string) (Value, bool) {
	return v.lookup(Slot{Type: t, Kind: OneWay, First: from, Second: to})
}

func (v *view) TwoWay(t TypeID, a, b string) (Value, bool) {
	return v.lookup(Slot{Type: t, Kind: TwoWay, First: a, Second: b})
}
