// Package policy keeps the policy directory: per-faction, per-ordered-pair
// and per-unordered-pair policy values for a growing set of factions, plus
// the registry of policy types and the change notification hub.
package policy

import (
	"fmt"
	"log/slog"
	"strings"
)

// TypeID names a policy type, e.g. "standing" or "war".
type TypeID string

// Kind classifies how a policy type is scoped.
type Kind uint8

const (
	Internal Kind = iota // One faction
	OneWay               // Ordered pair: A's policy toward B
	TwoWay               // Unordered pair: shared by A and B
)

var kindNames = [...]string{"internal", "one-way", "two-way"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Factions returns how many factions address a slot of this kind.
func (k Kind) Factions() int {
	if k == Internal {
		return 1
	}
	return 2
}

// ParseKind accepts the names produced by Kind.String, plus the
// underscore spellings used in catalog files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "internal":
		return Internal, nil
	case "one-way", "one_way", "oneway":
		return OneWay, nil
	case "two-way", "two_way", "twoway":
		return TwoWay, nil
	}
	return 0, fmt.Errorf("parse kind %q: %w", s, ErrInvalidDescriptor)
}

// Value is a policy record. The directory never looks inside a value; it
// only clones it so that callers cannot reach stored state.
//
// Values are expected to be pointers to plain structs so that they can be
// decoded in place (see persistence and the HTTP API).
type Value interface {
	Clone() Value
}

// Slot addresses one stored value. Second is empty for internal policies.
type Slot struct {
	Type   TypeID
	Kind   Kind
	First  string
	Second string
}

func (s Slot) String() string {
	switch s.Kind {
	case OneWay:
		return fmt.Sprintf("%s[%s]", s.Type, Ordered(s.First, s.Second))
	case TwoWay:
		return fmt.Sprintf("%s[%s]", s.Type, Unordered(s.First, s.Second))
	}
	return fmt.Sprintf("%s[%s]", s.Type, s.First)
}

// Generator computes a context-aware default for a slot. For two-way slots
// it runs once per unordered pair, with First <= Second.
type Generator func(v View, s Slot) Value

// View is the read-only directory access handed to generators. It sees the
// slots already filled for a faction that is still being created.
type View interface {
	Factions() []string
	Internal(t TypeID, faction string) (Value, bool)
	OneWay(t TypeID, from, to string) (Value, bool)
	TwoWay(t TypeID, a, b string) (Value, bool)
}

// Descriptor describes one policy type.
type Descriptor struct {
	ID          TypeID
	Kind        Kind
	Name        string // Display name; defaults to ID
	Category    string // Grouping for browsing; defaults to "general"
	Description string

	// Default returns a fresh value. Required.
	Default func() Value

	// Generator, when set, takes precedence over Default.
	Generator Generator
}

func (d Descriptor) validate() error {
	if d.ID == "" {
		return fmt.Errorf("empty policy type id: %w", ErrInvalidDescriptor)
	}
	if d.Kind > TwoWay {
		return fmt.Errorf("policy type %q: %s: %w", d.ID, d.Kind, ErrInvalidDescriptor)
	}
	if d.Default == nil {
		return fmt.Errorf("policy type %q: missing default: %w", d.ID, ErrInvalidDescriptor)
	}
	return nil
}

// New returns a fresh default value for the type.
func (d Descriptor) New() Value {
	return d.Default()
}

// generate fills a slot, preferring the generator. A generator that
// returns nil or panics falls back to the static default; a default that
// panics or returns nil is reported as ErrInvalidDescriptor.
func (d Descriptor) generate(v View, s Slot, logger *slog.Logger) (Value, error) {
	if d.Generator != nil {
		if val := d.runGenerator(v, s, logger); val != nil {
			return val, nil
		}
	}
	return d.safeDefault(s)
}

func (d Descriptor) runGenerator(v View, s Slot, logger *slog.Logger) (val Value) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("policy generator panicked", "type", d.ID, "slot", s.String(), "panic", r)
			val = nil
		}
	}()
	return d.Generator(v, s)
}

func (d Descriptor) safeDefault(s Slot) (val Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			val, err = nil, fmt.Errorf("policy type %q: default panicked for %s: %v: %w", d.ID, s, r, ErrInvalidDescriptor)
		}
	}()
	if val = d.Default(); val == nil {
		return nil, fmt.Errorf("policy type %q: nil default for %s: %w", d.ID, s, ErrInvalidDescriptor)
	}
	return val, nil
}
