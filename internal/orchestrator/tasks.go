package orchestrator

import (
	"context"

	"forumagent/internal/logging"
)

// The Run* methods are the scheduled entry points. Each one selects the
// persona for this firing, then runs the activity.

// RunAskQuestion picks a random novice and has it ask a question. Questions
// come from novices; experts answer, they don't ask.
func (o *Orchestrator) RunAskQuestion(ctx context.Context) ActivityResult {
	novices := o.registry.Novices()
	if len(novices) == 0 {
		return failure("no novice personas registered", nil)
	}
	return o.AskQuestion(ctx, novices[o.randIntn(len(novices))])
}

// RunForumPost picks a random persona of either role and has it post.
func (o *Orchestrator) RunForumPost(ctx context.Context) ActivityResult {
	all := o.registry.All()
	if len(all) == 0 {
		return failure("no personas registered", nil)
	}
	return o.CreateForumPost(ctx, all[o.randIntn(len(all))])
}

// RunReply picks the replying persona through the matcher: a random novice's
// recent question suggests the game, and the best-matched expert for that
// (novice, game) pair does the replying. Without a match any expert serves.
func (o *Orchestrator) RunReply(ctx context.Context) ActivityResult {
	if novices := o.registry.Novices(); len(novices) > 0 {
		novice := novices[o.randIntn(len(novices))]

		game := ""
		if questions, err := o.store.RecentQuestionsByUser(ctx, novice.Username, o.now().Add(-o.tuning.RecentWindow)); err == nil && len(questions) > 0 {
			game = questions[0].Game
		}
		if expert := o.registry.MatchExpert(novice, game); expert != nil {
			logging.Matcher("expert %s matched to novice %s (game hint %q)",
				expert.Username, novice.Username, game)
			return o.ReplyToPost(ctx, expert)
		}
		logging.MatcherDebug("no expert matched novice %s, falling back to any expert", novice.Username)
	}

	experts := o.registry.Experts()
	if len(experts) == 0 {
		return failure("no expert personas registered", nil)
	}
	return o.ReplyToPost(ctx, experts[o.randIntn(len(experts))])
}
