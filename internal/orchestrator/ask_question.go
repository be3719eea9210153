package orchestrator

import (
	"context"

	"forumagent/internal/generator"
	"forumagent/internal/logging"
	"forumagent/internal/persona"
	"forumagent/internal/resilience"
	"forumagent/internal/store"
)

// AskQuestion has the persona ask one question through the Q&A front-end.
// Game selection is weighted toward games the persona has asked about least
// recently; the generated question carries anti-duplication context.
func (o *Orchestrator) AskQuestion(ctx context.Context, p *persona.Persona) ActivityResult {
	game, genre := o.pickQuestionGame(ctx, p)
	if game == "" {
		return failure("persona has no preferred games to ask about", nil)
	}
	logging.Activity("%s asking a question about %s", p.Username, game)

	since := o.now().Add(-o.tuning.RecentWindow)

	// Recent questions for the same game (from everyone) plus a sample of
	// the persona's own questions about other games.
	var avoid []string
	if recent, err := o.store.RecentQuestions(ctx, game, since, o.tuning.MaxAvoidTexts); err == nil {
		for _, q := range recent {
			avoid = append(avoid, q.Body)
		}
	} else {
		logging.ActivityWarn("recent questions unavailable: %v", err)
	}
	mine, err := o.store.RecentQuestionsByUser(ctx, p.Username, since)
	if err != nil {
		logging.ActivityWarn("own question history unavailable for %s: %v", p.Username, err)
		mine = nil
	}
	for _, q := range mine {
		if q.Game != game {
			avoid = append(avoid, q.Body)
		}
	}

	question, err := o.gen.Generate(ctx, generator.Request{
		Persona:    p,
		Kind:       generator.KindQuestion,
		Game:       game,
		Genre:      genre,
		AvoidTexts: o.avoidTexts(avoid),
		Openers:    o.underusedOpeners(mine),
	})
	if err != nil {
		return failure("question generation failed", err)
	}

	modRes, err := o.mod.Check(ctx, question)
	if err != nil {
		return failure("moderation check failed", err)
	}
	if !modRes.Allowed {
		return moderationFailure(modRes.Terms)
	}

	answer, err := resilience.RetryValue(ctx, o.tuning.Retry, func(ctx context.Context) (string, error) {
		return o.qa.Ask(ctx, p.Username, game, question)
	})
	if err != nil {
		return failure("Q&A call failed", err)
	}

	if _, err := o.store.AddQuestion(ctx, store.Question{
		Username: p.Username, Game: game, Body: question, Answer: answer,
	}); err != nil {
		return failure("failed to record question", err)
	}

	logging.Activity("%s asked about %s and got an answer (%d chars)", p.Username, game, len(answer))
	return success("question asked and answered", map[string]string{
		"game":     game,
		"genre":    genre,
		"question": question,
		"answer":   answer,
	})
}
