// Faction dynamics: attitude drift, war and treaties.
package engine

import (
	"log/slog"
	"math"

	"github.com/talgya/factions/internal/phi"
	"github.com/talgya/factions/internal/policy"
	"github.com/talgya/factions/internal/social"
)

// Diplomacy thresholds on the mutual attitude of a pair.
const (
	WarThreshold    = -60.0 // below: war breaks out
	PeaceThreshold  = -20.0 // above: an ongoing war ends
	TreatyThreshold = 40.0  // above: a trade treaty is signed
)

// driftAttitudes moves every attitude toward neutral (grudges fade,
// alliances weaken). Returns the number of attitudes changed.
func (s *Simulation) driftAttitudes() int {
	if !s.Dir.Registry().Has(social.TypeAttitude) {
		return 0
	}
	names := s.Dir.ListFactions()
	changed := 0
	for _, from := range names {
		for _, to := range names {
			if from == to {
				continue
			}
			att, err := policy.GetAs[*social.Attitude](s.Dir, social.TypeAttitude, from, to)
			if err != nil {
				slog.Warn("attitude drift skipped", "from", from, "to", to, "error", err)
				continue
			}
			drift := att.Score * phi.Agnosis * 0.1 // ~2.4% decay toward neutral
			if math.Abs(drift) < 0.005 {
				continue
			}
			att.Score = math.Round((att.Score-drift)*100) / 100
			if err := s.Dir.SaveOneWay(social.TypeAttitude, from, to, att); err != nil {
				slog.Warn("attitude drift failed", "from", from, "to", to, "error", err)
				continue
			}
			changed++
		}
	}
	return changed
}

// MutualAttitude is the mean of both directions' attitudes.
func (s *Simulation) MutualAttitude(a, b string) (float64, error) {
	ab, err := policy.GetAs[*social.Attitude](s.Dir, social.TypeAttitude, a, b)
	if err != nil {
		return 0, err
	}
	ba, err := policy.GetAs[*social.Attitude](s.Dir, social.TypeAttitude, b, a)
	if err != nil {
		return 0, err
	}
	return (ab.Score + ba.Score) / 2, nil
}

// processDiplomacy declares wars, makes peace and signs or dissolves trade
// treaties according to mutual attitudes.
func (s *Simulation) processDiplomacy(tick uint64) {
	if !s.Dir.Registry().Has(social.TypeAttitude) {
		return
	}
	hasWar := s.Dir.Registry().Has(social.TypeWar)
	hasTreaty := s.Dir.Registry().Has(social.TypeTreaty)

	forEachPair(s.Dir.ListFactions(), func(a, b string) {
		mutual, err := s.MutualAttitude(a, b)
		if err != nil {
			slog.Warn("diplomacy skipped", "a", a, "b", b, "error", err)
			return
		}

		atWar := false
		if hasWar {
			war, err := policy.GetAs[*social.War](s.Dir, social.TypeWar, a, b)
			if err != nil {
				slog.Warn("diplomacy skipped", "a", a, "b", b, "error", err)
				return
			}
			atWar = war.AtWar
			switch {
			case !atWar && mutual < WarThreshold:
				s.save(social.TypeWar, a, b, &social.War{AtWar: true, SinceTick: tick})
				atWar = true
				slog.Info("war declared", "a", a, "b", b, "mutual", mutual)
			case atWar && mutual > PeaceThreshold:
				s.save(social.TypeWar, a, b, &social.War{})
				atWar = false
				slog.Info("peace made", "a", a, "b", b, "mutual", mutual, "since", war.SinceTick)
			}
		}

		if hasTreaty {
			treaty, err := policy.GetAs[*social.Treaty](s.Dir, social.TypeTreaty, a, b)
			if err != nil {
				slog.Warn("diplomacy skipped", "a", a, "b", b, "error", err)
				return
			}
			switch {
			case treaty.Trade && (atWar || mutual < 0):
				s.save(social.TypeTreaty, a, b, &social.Treaty{Defense: treaty.Defense})
			case !treaty.Trade && !atWar && mutual > TreatyThreshold:
				s.save(social.TypeTreaty, a, b, &social.Treaty{Trade: true, Defense: treaty.Defense})
			}
		}
	})
}

func (s *Simulation) save(t policy.TypeID, a, b string, v policy.Value) {
	if err := s.Dir.SaveTwoWay(t, a, b, v); err != nil {
		slog.Warn("diplomacy save failed", "type", t, "a", a, "b", b, "error", err)
	}
}
