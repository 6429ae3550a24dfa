// Package social defines faction profiles, the built-in policy types and the
// generators that seed them.
package social

import (
	"fmt"
	"strings"
	"sync"
)

// FactionKind categorizes the nature of a faction.
type FactionKind uint8

const (
	FactionPolitical FactionKind = iota // Governance-focused
	FactionEconomic                     // Trade and wealth
	FactionMilitary                     // Martial power
	FactionReligious                    // Spiritual and cultural
	FactionCriminal                     // Underground
)

var kindNames = []string{"Political", "Economic", "Military", "Religious", "Criminal"}

func (k FactionKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// ParseFactionKind is case-insensitive.
func ParseFactionKind(s string) (FactionKind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return FactionKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown faction kind %q", s)
}

// Profile describes a faction before it exists in the directory: its kind
// and policy tendencies. Profiles feed the tendencies generator, so a
// faction created under a known name starts with its profile's tendencies.
type Profile struct {
	Name       string      `json:"name" yaml:"name"`
	Kind       FactionKind `json:"kind" yaml:"-"`
	Tendencies Tendencies  `json:"tendencies" yaml:"tendencies"`
}

// Relation is an initial attitude between two factions, applied in both
// directions.
type Relation struct {
	A, B     string
	Attitude float64
}

// Profiles is a concurrency-safe set of faction profiles keyed by name.
type Profiles struct {
	mu sync.RWMutex
	m  map[string]Profile
}

// NewProfiles creates a book holding ps.
func NewProfiles(ps ...Profile) *Profiles {
	b := &Profiles{m: make(map[string]Profile)}
	for _, p := range ps {
		b.Add(p)
	}
	return b
}

// Add stores or replaces a profile.
func (b *Profiles) Add(p Profile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[p.Name] = p
}

// Lookup returns the profile for name.
func (b *Profiles) Lookup(name string) (Profile, bool) {
	if b == nil {
		return Profile{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.m[name]
	return p, ok
}

// SeedProfiles returns the 5 initial factions of the world.
func SeedProfiles() []Profile {
	return []Profile{
		{
			Name:       "The Crown",
			Kind:       FactionPolitical,
			Tendencies: Tendencies{Tax: 0.3, Trade: 0.0, Military: 0.5},
		},
		{
			Name:       "Merchant's Compact",
			Kind:       FactionEconomic,
			Tendencies: Tendencies{Tax: -0.5, Trade: 0.8, Military: -0.3},
		},
		{
			Name:       "Iron Brotherhood",
			Kind:       FactionMilitary,
			Tendencies: Tendencies{Tax: 0.2, Trade: -0.2, Military: 0.9},
		},
		{
			Name:       "Verdant Circle",
			Kind:       FactionReligious,
			Tendencies: Tendencies{Tax: 0.0, Trade: -0.3, Military: -0.5},
		},
		{
			Name:       "Ashen Path",
			Kind:       FactionCriminal,
			Tendencies: Tendencies{Tax: -0.8, Trade: 0.4, Military: 0.2},
		},
	}
}

// SeedRelations returns the initial attitudes between the seed factions.
// Crown vs Merchant: mild tension. Crown vs Iron Brotherhood: alliance.
// Ashen Path: distrusted by all.
func SeedRelations() []Relation {
	return []Relation{
		{"The Crown", "Merchant's Compact", -20},
		{"The Crown", "Iron Brotherhood", 30},
		{"The Crown", "Verdant Circle", 10},
		{"The Crown", "Ashen Path", -50},
		{"Merchant's Compact", "Iron Brotherhood", -10},
		{"Merchant's Compact", "Verdant Circle", 20},
		{"Merchant's Compact", "Ashen Path", -30},
		{"Iron Brotherhood", "Verdant Circle", -20},
		{"Iron Brotherhood", "Ashen Path", -40},
		{"Verdant Circle", "Ashen Path", -60},
	}
}
