package social

import (
	"fmt"
	"log/slog"

	"github.com/talgya/factions/internal/policy"
)

// Seed creates the profiled factions that do not exist yet and applies the
// relations touching at least one of them. Factions that already exist are
// left as they are, so seeding a restored directory only adds newcomers.
// It returns the names created.
func Seed(dir *policy.Directory, profiles []Profile, relations []Relation) ([]string, error) {
	created := make(map[string]bool)
	var names []string
	for _, p := range profiles {
		if dir.HasFaction(p.Name) {
			continue
		}
		if err := dir.CreateFaction(p.Name); err != nil {
			return names, fmt.Errorf("seed faction %q: %w", p.Name, err)
		}
		created[p.Name] = true
		names = append(names, p.Name)
	}

	for _, r := range relations {
		if !created[r.A] && !created[r.B] {
			continue
		}
		if err := SetRelation(dir, r.A, r.B, r.Attitude); err != nil {
			return names, err
		}
	}

	if len(names) > 0 {
		slog.Info("factions seeded", "created", len(names), "total", len(dir.ListFactions()))
	}
	return names, nil
}

// SetRelation sets a symmetric attitude between two factions.
func SetRelation(dir *policy.Directory, a, b string, value float64) error {
	att := &Attitude{Score: clampAttitude(value)}
	if err := dir.SaveOneWay(TypeAttitude, a, b, att); err != nil {
		return fmt.Errorf("set relation %s>%s: %w", a, b, err)
	}
	if err := dir.SaveOneWay(TypeAttitude, b, a, att); err != nil {
		return fmt.Errorf("set relation %s>%s: %w", b, a, err)
	}
	return nil
}
