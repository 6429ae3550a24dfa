// Package catalog loads faction and policy type definitions from YAML and
// applies them to a policy directory. A catalog can be re-applied at any
// time: existing factions and types are kept, new ones are added and
// backfilled.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/factions/internal/policy"
	"github.com/talgya/factions/internal/social"
)

// Catalog is the parsed form of a catalog file.
type Catalog struct {
	Factions  []Faction  `yaml:"factions"`
	Relations []Relation `yaml:"relations"`

	// Policies lists the built-in policy types to enable, optionally with
	// display overrides. Empty enables all of them.
	Policies []Policy `yaml:"policies"`
}

// Faction is a faction seed.
type Faction struct {
	Name       string            `yaml:"name"`
	Kind       string            `yaml:"kind"`
	Tendencies social.Tendencies `yaml:"tendencies"`
}

// Relation is an initial relation between two factions.
type Relation struct {
	From     string  `yaml:"from"`
	To       string  `yaml:"to"`
	Attitude float64 `yaml:"attitude"`
	War      bool    `yaml:"war"`
}

// Policy enables a built-in policy type.
type Policy struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid catalog")

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates catalog YAML. Unknown fields are rejected.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the catalog of the seed world.
func Default() *Catalog {
	c := &Catalog{}
	for _, p := range social.SeedProfiles() {
		c.Factions = append(c.Factions, Faction{
			Name:       p.Name,
			Kind:       p.Kind.String(),
			Tendencies: p.Tendencies,
		})
	}
	for _, r := range social.SeedRelations() {
		c.Relations = append(c.Relations, Relation{From: r.A, To: r.B, Attitude: r.Attitude})
	}
	return c
}

// Validate checks names, kinds and policy ids.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool)
	for i, f := range c.Factions {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("factions[%d]: empty name: %w", i, ErrInvalid)
		}
		if seen[f.Name] {
			return fmt.Errorf("factions[%d]: duplicate %q: %w", i, f.Name, ErrInvalid)
		}
		seen[f.Name] = true
		if f.Kind != "" {
			if _, err := social.ParseFactionKind(f.Kind); err != nil {
				return fmt.Errorf("factions[%d]: %v: %w", i, err, ErrInvalid)
			}
		}
	}
	for i, r := range c.Relations {
		if r.From == "" || r.To == "" {
			return fmt.Errorf("relations[%d]: missing faction: %w", i, ErrInvalid)
		}
		if r.From == r.To {
			return fmt.Errorf("relations[%d]: %q related to itself: %w", i, r.From, ErrInvalid)
		}
	}
	known := make(map[policy.TypeID]bool)
	for _, d := range social.Descriptors(nil, 0) {
		known[d.ID] = true
	}
	for i, p := range c.Policies {
		if !known[policy.TypeID(p.ID)] {
			return fmt.Errorf("policies[%d]: unknown policy type %q: %w", i, p.ID, ErrInvalid)
		}
	}
	return nil
}

// Profiles converts the faction seeds.
func (c *Catalog) Profiles() []social.Profile {
	out := make([]social.Profile, 0, len(c.Factions))
	for _, f := range c.Factions {
		kind, _ := social.ParseFactionKind(f.Kind)
		out = append(out, social.Profile{Name: f.Name, Kind: kind, Tendencies: f.Tendencies})
	}
	return out
}

// descriptors returns the enabled built-in types with overrides applied.
func (c *Catalog) descriptors(profiles *social.Profiles, seed int64) []policy.Descriptor {
	all := social.Descriptors(profiles, seed)
	if len(c.Policies) == 0 {
		return all
	}
	byID := make(map[policy.TypeID]policy.Descriptor, len(all))
	for _, d := range all {
		byID[d.ID] = d
	}
	out := make([]policy.Descriptor, 0, len(c.Policies))
	for _, p := range c.Policies {
		d := byID[policy.TypeID(p.ID)]
		if p.Name != "" {
			d.Name = p.Name
		}
		if p.Category != "" {
			d.Category = p.Category
		}
		if p.Description != "" {
			d.Description = p.Description
		}
		out = append(out, d)
	}
	return out
}

// Result reports what Apply changed.
type Result struct {
	Registered []policy.TypeID
	Created    []string
}

// Register stores the faction profiles and registers the enabled policy
// types that are missing, backfilling existing factions. It returns the
// types registered.
func (c *Catalog) Register(dir *policy.Directory, profiles *social.Profiles, seed int64) ([]policy.TypeID, error) {
	for _, p := range c.Profiles() {
		profiles.Add(p)
	}

	var registered []policy.TypeID
	for _, d := range c.descriptors(profiles, seed) {
		if dir.Registry().Has(d.ID) {
			continue
		}
		if _, err := dir.RegisterType(d); err != nil {
			return registered, fmt.Errorf("register catalog types: %w", err)
		}
		registered = append(registered, d.ID)
	}
	return registered, nil
}

// Apply registers missing types, creates the missing factions and applies
// relations that touch a newly created faction.
func (c *Catalog) Apply(dir *policy.Directory, profiles *social.Profiles, seed int64) (Result, error) {
	var res Result

	registered, err := c.Register(dir, profiles, seed)
	res.Registered = registered
	if err != nil {
		return res, fmt.Errorf("apply catalog: %w", err)
	}

	relations := make([]social.Relation, 0, len(c.Relations))
	for _, r := range c.Relations {
		relations = append(relations, social.Relation{A: r.From, B: r.To, Attitude: r.Attitude})
	}
	created, err := social.Seed(dir, c.Profiles(), relations)
	res.Created = created
	if err != nil {
		return res, fmt.Errorf("apply catalog: %w", err)
	}

	isNew := make(map[string]bool, len(created))
	for _, n := range created {
		isNew[n] = true
	}
	if dir.Registry().Has(social.TypeWar) {
		for _, r := range c.Relations {
			if !r.War || (!isNew[r.From] && !isNew[r.To]) {
				continue
			}
			if err := dir.SaveTwoWay(social.TypeWar, r.From, r.To, &social.War{AtWar: true}); err != nil {
				return res, fmt.Errorf("apply catalog: war %s&%s: %w", r.From, r.To, err)
			}
		}
	}

	if len(res.Registered) > 0 || len(res.Created) > 0 {
		slog.Info("catalog applied",
			"registered", len(res.Registered),
			"created", len(res.Created),
			"factions", len(dir.ListFactions()),
		)
	}
	return res, nil
}
