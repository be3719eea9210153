package persona

import (
	"strings"

	"forumagent/internal/logging"
)

// Scoring weights for expert matching. Game-level expertise overlap dominates,
// then topic overlap within the game, then genre overlap, then skill gap.
const (
	scoreSharedGame    = 3.0
	scoreSharedTopic   = 2.0
	scoreSharedGenre   = 1.0
	scoreIdealSkillGap = 2.0
	scoreOkSkillGap    = 1.0
)

// MatchExpert returns the best expert to answer the given novice, optionally
// narrowed to a single game title. A configured fixed pairing wins outright.
// Candidates are scored by expertise overlap with the novice's struggles,
// genre overlap, and skill gap; ties break alphabetically by username so
// repeated calls with identical inputs return the same expert. Returns nil
// when no expert has any usable overlap.
func (r *Registry) MatchExpert(novice *Persona, game string) *Persona {
	if novice == nil || novice.Role != RoleNovice {
		return nil
	}

	experts := r.Experts()

	// Fixed pairing is strictly higher priority than any score.
	for _, e := range experts {
		if e.PairedNovice != "" && strings.EqualFold(e.PairedNovice, novice.Username) {
			logging.MatcherDebug("fixed pairing: %s -> %s", novice.Username, e.Username)
			return e
		}
	}

	var best *Persona
	bestScore := 0.0
	for _, e := range experts {
		score := matchScore(novice, e, game)
		logging.MatcherDebug("candidate %s for %s scored %.1f", e.Username, novice.Username, score)
		// Strict > keeps the alphabetically-first candidate on ties,
		// since experts are iterated in sorted order.
		if score > bestScore {
			best = e
			bestScore = score
		}
	}

	if best == nil {
		logging.Matcher("no expert with usable overlap for %s (game=%q)", novice.Username, game)
		return nil
	}
	logging.Matcher("matched %s -> %s (score=%.1f, game=%q)", novice.Username, best.Username, bestScore, game)
	return best
}

func matchScore(novice, expert *Persona, game string) float64 {
	score := 0.0

	// (a) struggled-with game vs expert's expertise for that same game
	for _, na := range novice.Games {
		if game != "" && !strings.EqualFold(na.Game, game) {
			continue
		}
		if len(na.Struggles) == 0 {
			continue
		}
		ea := expert.AffinityFor(na.Game)
		if ea == nil || len(ea.Expertise) == 0 {
			continue
		}
		score += scoreSharedGame
		for _, s := range na.Struggles {
			for _, x := range ea.Expertise {
				if strings.EqualFold(s, x) {
					score += scoreSharedTopic
				}
			}
		}
	}

	// (b) genre overlap across each persona's game list
	noviceGenres := novice.AllGenres()
	for g := range expert.AllGenres() {
		if _, ok := noviceGenres[g]; ok {
			score += scoreSharedGenre
		}
	}

	// (c) skill gap: a sizeable but not extreme gap reads most naturally
	// in a help thread. Gap bonus never creates a match on its own.
	if score > 0 {
		gap := expert.SkillLevel - novice.SkillLevel
		switch {
		case gap >= 3 && gap <= 6:
			score += scoreIdealSkillGap
		case gap >= 1 && gap <= 8:
			score += scoreOkSkillGap
		}
	}

	return score
}
