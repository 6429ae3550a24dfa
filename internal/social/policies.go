package social

import (
	"fmt"

	"github.com/talgya/factions/internal/policy"
)

// Built-in policy type ids.
const (
	TypeStanding   policy.TypeID = "standing"
	TypeTendencies policy.TypeID = "tendencies"
	TypeAttitude   policy.TypeID = "attitude"
	TypeEmbargo    policy.TypeID = "embargo"
	TypeWar        policy.TypeID = "war"
	TypeTreaty     policy.TypeID = "treaty"
)

// Standing is a faction's prestige. Internal.
type Standing struct {
	Value int `json:"value"`
}

func (s *Standing) Clone() policy.Value { c := *s; return &c }

// Tendencies are a faction's policy leanings, each in [-1, 1]. Internal.
type Tendencies struct {
	Tax      float64 `json:"tax" yaml:"tax"`           // -1 low taxes, +1 high taxes
	Trade    float64 `json:"trade" yaml:"trade"`       // -1 isolationist, +1 free trade
	Military float64 `json:"military" yaml:"military"` // -1 pacifist, +1 militarist
}

func (t *Tendencies) Clone() policy.Value { c := *t; return &c }

// Attitude is one faction's opinion of another, in [-100, 100]. One-way.
type Attitude struct {
	Score float64 `json:"score"`
}

func (a *Attitude) Clone() policy.Value { c := *a; return &c }

// Embargo blocks one faction's trade with another. One-way.
type Embargo struct {
	Active bool `json:"active"`
}

func (e *Embargo) Clone() policy.Value { c := *e; return &c }

// War is shared by both belligerents. Two-way.
type War struct {
	AtWar     bool   `json:"at_war"`
	SinceTick uint64 `json:"since_tick,omitempty"`
}

func (w *War) Clone() policy.Value { c := *w; return &c }

// Treaty records agreements between two factions. Two-way.
type Treaty struct {
	Trade   bool `json:"trade"`
	Defense bool `json:"defense"`
}

func (t *Treaty) Clone() policy.Value { c := *t; return &c }

// Descriptors returns the built-in policy types. Tendencies come from
// profiles; attitudes are generated from tendencies and seeded noise.
func Descriptors(profiles *Profiles, noiseSeed int64) []policy.Descriptor {
	return []policy.Descriptor{
		{
			ID:          TypeStanding,
			Kind:        policy.Internal,
			Name:        "Standing",
			Category:    "internal",
			Description: "Prestige of the faction.",
			Default:     func() policy.Value { return &Standing{} },
		},
		{
			ID:          TypeTendencies,
			Kind:        policy.Internal,
			Name:        "Tendencies",
			Category:    "internal",
			Description: "Tax, trade and military leanings.",
			Default:     func() policy.Value { return &Tendencies{} },
			Generator:   TendenciesGenerator(profiles),
		},
		{
			ID:          TypeAttitude,
			Kind:        policy.OneWay,
			Name:        "Attitude",
			Category:    "diplomacy",
			Description: "Opinion of another faction, -100 to +100.",
			Default:     func() policy.Value { return &Attitude{} },
			Generator:   AttitudeGenerator(noiseSeed),
		},
		{
			ID:          TypeEmbargo,
			Kind:        policy.OneWay,
			Name:        "Embargo",
			Category:    "economy",
			Description: "Refuses trade with another faction.",
			Default:     func() policy.Value { return &Embargo{} },
		},
		{
			ID:          TypeWar,
			Kind:        policy.TwoWay,
			Name:        "War",
			Category:    "diplomacy",
			Description: "Open conflict between two factions.",
			Default:     func() policy.Value { return &War{} },
		},
		{
			ID:          TypeTreaty,
			Kind:        policy.TwoWay,
			Name:        "Treaty",
			Category:    "economy",
			Description: "Trade and defense agreements.",
			Default:     func() policy.Value { return &Treaty{} },
		},
	}
}

// Register adds the built-in policy types to dir. Types that are already
// registered are skipped, so it is safe to call on a restored directory.
func Register(dir *policy.Directory, profiles *Profiles, noiseSeed int64) error {
	for _, d := range Descriptors(profiles, noiseSeed) {
		if dir.Registry().Has(d.ID) {
			continue
		}
		if _, err := dir.RegisterType(d); err != nil {
			return fmt.Errorf("register %s: %w", d.ID, err)
		}
	}
	return nil
}
