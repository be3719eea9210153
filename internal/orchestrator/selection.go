package orchestrator

import (
	"context"
	"strings"

	"forumagent/internal/logging"
	"forumagent/internal/persona"
	"forumagent/internal/similarity"
	"forumagent/internal/store"
)

// pickQuestionGame selects a game for a question, weighted toward games this
// persona has asked about least in the recent window. When the counts cannot
// be read, selection falls back to uniform random over the preference list.
func (o *Orchestrator) pickQuestionGame(ctx context.Context, p *persona.Persona) (game, genre string) {
	games := p.Games
	if len(games) == 0 {
		return "", ""
	}

	counts, err := o.store.QuestionCountsByGame(ctx, p.Username, o.now().Add(-o.tuning.RecentWindow))
	if err != nil {
		logging.ActivityWarn("question counts unavailable for %s, picking uniformly: %v", p.Username, err)
		g := games[o.randIntn(len(games))]
		return g.Game, firstGenre(g)
	}

	// Weight each game inversely to how often it was asked about.
	weights := make([]int, len(games))
	total := 0
	for i, g := range games {
		w := 100 / (1 + counts[g.Game])
		if w < 1 {
			w = 1
		}
		weights[i] = w
		total += w
	}
	pick := o.randIntn(total)
	for i, w := range weights {
		if pick < w {
			return games[i].Game, firstGenre(games[i])
		}
		pick -= w
	}
	g := games[len(games)-1]
	return g.Game, firstGenre(g)
}

func firstGenre(g persona.GameAffinity) string {
	if len(g.Genres) > 0 {
		return g.Genres[0]
	}
	return ""
}

// pickPostGame selects a game for a forum post. With probability
// NewForumBias it steers toward the persona's game with the fewest active
// forums, to spread coverage; otherwise it reuses a game that already has
// forums.
func (o *Orchestrator) pickPostGame(ctx context.Context, p *persona.Persona) string {
	titles := p.GameTitles()
	if len(titles) == 0 {
		return ""
	}

	counts, err := o.store.ActiveForumCount(ctx)
	if err != nil {
		logging.ActivityWarn("forum counts unavailable, picking uniformly: %v", err)
		return titles[o.randIntn(len(titles))]
	}

	if o.randFloat() < o.tuning.NewForumBias {
		// Least-covered game wins; ties resolve by preference order.
		best := titles[0]
		for _, t := range titles[1:] {
			if counts[t] < counts[best] {
				best = t
			}
		}
		return best
	}

	// Reuse: pick among games that already have forums, falling back to
	// any preference when none do.
	var covered []string
	for _, t := range titles {
		if counts[t] > 0 {
			covered = append(covered, t)
		}
	}
	if len(covered) == 0 {
		return titles[o.randIntn(len(titles))]
	}
	return covered[o.randIntn(len(covered))]
}

// pickCategory draws a forum category from the fixed weighted distribution.
func (o *Orchestrator) pickCategory() store.Category {
	total := 0
	for _, w := range o.tuning.CategoryWeights {
		total += w
	}
	if total == 0 {
		return store.CategoryGeneral
	}
	pick := o.randIntn(total)
	// Iterate the fixed category order so the draw is stable for a given
	// random value regardless of map iteration order.
	for _, c := range store.Categories() {
		w := o.tuning.CategoryWeights[c]
		if pick < w {
			return c
		}
		pick -= w
	}
	return store.CategoryGeneral
}

// findOrCreateForum locates the destination forum for (game, category) with
// the documented priority order, creating one only when the game has no
// forums at all. Creation is race-tolerant: a duplicate found after the
// creation attempt is the canonical forum.
func (o *Orchestrator) findOrCreateForum(ctx context.Context, p *persona.Persona, game string, category store.Category) (*store.Forum, error) {
	forums, err := o.store.ForumsForGame(ctx, game)
	if err != nil {
		return nil, err
	}

	// 1. The user's own forum matching (game, category).
	for i := range forums {
		if forums[i].Category == category && forums[i].Creator == p.Username {
			return &forums[i], nil
		}
	}
	// 2. Any forum matching (game, category).
	for i := range forums {
		if forums[i].Category == category {
			return &forums[i], nil
		}
	}
	// 3. The user's forum for the game in a different category.
	for i := range forums {
		if forums[i].Creator == p.Username {
			return &forums[i], nil
		}
	}
	// 4. Any forum for the game.
	if len(forums) > 0 {
		return &forums[0], nil
	}
	// 5. Create new.
	logging.Activity("creating forum for (%s, %s) on behalf of %s", game, category, p.Username)
	return o.store.CreateForum(ctx, game, category, p.Username)
}

// tooSimilar reports whether a draft is a near-duplicate of any prior text:
// similarity above the threshold, a shared chapter/level number, or a shared
// topic keyword.
func (o *Orchestrator) tooSimilar(draft string, prior []string) (bool, string) {
	for _, prev := range prior {
		if score := similarity.Score(draft, prev); score > o.tuning.SimilarityThreshold {
			return true, "similarity"
		}
		if similarity.SharedNumbers(draft, prev) {
			return true, "chapter/level collision"
		}
		if similarity.SharedTopics(draft, prev, o.tuning.TopicKeywords) {
			return true, "topic collision"
		}
	}
	return false, ""
}

// underusedOpeners returns opener words the persona has leaned on least in
// its recent questions, to push toward lexical variety.
func (o *Orchestrator) underusedOpeners(recentQuestions []store.Question) []string {
	used := make(map[string]int)
	for _, q := range recentQuestions {
		fields := strings.Fields(q.Body)
		if len(fields) > 0 {
			used[strings.ToLower(strings.TrimRight(fields[0], ",.!?"))]++
		}
	}

	min := -1
	for _, opener := range o.tuning.QuestionOpeners {
		if n := used[strings.ToLower(opener)]; min == -1 || n < min {
			min = n
		}
	}
	var out []string
	for _, opener := range o.tuning.QuestionOpeners {
		if used[strings.ToLower(opener)] == min {
			out = append(out, opener)
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}

// avoidTexts caps and returns the prior bodies fed to the generator.
func (o *Orchestrator) avoidTexts(bodies []string) []string {
	if len(bodies) > o.tuning.MaxAvoidTexts {
		bodies = bodies[:o.tuning.MaxAvoidTexts]
	}
	return bodies
}
