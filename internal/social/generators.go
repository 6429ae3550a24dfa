package social

import (
	"hash/fnv"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/factions/internal/phi"
	"github.com/talgya/factions/internal/policy"
)

// TendenciesGenerator returns the profile's tendencies for known factions
// and neutral leanings otherwise.
func TendenciesGenerator(profiles *Profiles) policy.Generator {
	return func(_ policy.View, s policy.Slot) policy.Value {
		if p, ok := profiles.Lookup(s.First); ok {
			t := p.Tendencies
			return &t
		}
		return &Tendencies{}
	}
}

// AttitudeGenerator derives a starting attitude from how alike two
// factions' tendencies are, plus simplex noise sampled at the ordered pair.
// Sampling (from, to) and (to, from) hits different points of the field, so
// the two directions usually differ.
func AttitudeGenerator(seed int64) policy.Generator {
	noise := opensimplex.New(seed)
	return func(v policy.View, s policy.Slot) policy.Value {
		from := tendenciesOf(v, s.First)
		to := tendenciesOf(v, s.Second)

		// Mean distance is 0..2; map similarity onto -50..+50.
		dist := (math.Abs(from.Tax-to.Tax) + math.Abs(from.Trade-to.Trade) + math.Abs(from.Military-to.Military)) / 3
		base := (1 - dist) * 50

		// Suspicion: militarists distrust everyone a little.
		base -= math.Max(from.Military, 0) * phi.Agnosis * 20

		n := noise.Eval2(nameCoord(s.First), nameCoord(s.Second)*phi.Phi)
		score := base + n*100*phi.Agnosis

		return &Attitude{Score: clampAttitude(math.Round(score*10) / 10)}
	}
}

func tendenciesOf(v policy.View, faction string) Tendencies {
	val, ok := v.Internal(TypeTendencies, faction)
	if !ok {
		return Tendencies{}
	}
	t, ok := val.(*Tendencies)
	if !ok {
		return Tendencies{}
	}
	return *t
}

// nameCoord maps a faction name to a stable coordinate in the noise field.
func nameCoord(name string) float64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return float64(h.Sum64()%100000) / 1000
}

func clampAttitude(x float64) float64 {
	return math.Max(-100, math.Min(100, x))
}
