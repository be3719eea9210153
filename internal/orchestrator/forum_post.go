package orchestrator

import (
	"context"
	"fmt"

	"forumagent/internal/generator"
	"forumagent/internal/logging"
	"forumagent/internal/persona"
	"forumagent/internal/store"
)

// CreateForumPost has the persona write one post to a forum, preferring
// games with little forum coverage and avoiding near-duplicate content.
func (o *Orchestrator) CreateForumPost(ctx context.Context, p *persona.Persona) ActivityResult {
	game := o.pickPostGame(ctx, p)
	if game == "" {
		return failure("persona has no preferred games to post about", nil)
	}
	category := o.pickCategory()

	forum, err := o.findOrCreateForum(ctx, p, game, category)
	if err != nil {
		return failure(fmt.Sprintf("no destination forum for (%s, %s)", game, category), err)
	}
	logging.Activity("%s posting to forum %s (%s/%s)", p.Username, forum.ID, game, forum.Category)

	// Prior texts for anti-duplication: everyone's recent posts about the
	// same game, plus this persona's own recent posts elsewhere so it does
	// not recycle its material across games.
	since := o.now().Add(-o.tuning.RecentWindow)
	var prior []string
	if recent, err := o.store.RecentPostsByGame(ctx, game, since); err == nil {
		for _, post := range recent {
			prior = append(prior, post.Body)
		}
	} else {
		logging.ActivityWarn("recent posts unavailable for %s: %v", game, err)
	}
	if mine, err := o.store.RecentPostsByAuthor(ctx, p.Username, since); err == nil {
		for _, post := range mine {
			if post.ForumID != forum.ID {
				prior = append(prior, post.Body)
			}
		}
	} else {
		logging.ActivityWarn("own post history unavailable for %s: %v", p.Username, err)
	}

	var text string
	for attempt := 1; attempt <= o.tuning.MaxDraftAttempts; attempt++ {
		text, err = o.gen.Generate(ctx, generator.Request{
			Persona:    p,
			Kind:       generator.KindForumPost,
			Game:       game,
			Category:   string(forum.Category),
			AvoidTexts: o.avoidTexts(prior),
		})
		if err != nil {
			return failure("post generation failed", err)
		}
		similar, reason := o.tooSimilar(text, prior)
		if !similar {
			break
		}
		if attempt == o.tuning.MaxDraftAttempts {
			// Accepting the last draft anyway is the documented policy;
			// duplication is annoying, a silent no-op is worse.
			logging.ActivityWarn("%s: draft still too similar after %d attempts (%s), accepting",
				p.Username, attempt, reason)
			break
		}
		logging.ActivityDebug("%s: draft %d rejected (%s), regenerating", p.Username, attempt, reason)
	}

	modRes, err := o.mod.Check(ctx, text)
	if err != nil {
		return failure("moderation check failed", err)
	}
	if !modRes.Allowed {
		return moderationFailure(modRes.Terms)
	}

	// Image attachment is best-effort; a post without one is still a post.
	image := ""
	if o.images != nil {
		image, err = o.images.Pick(ctx, p.Username, game)
		if err != nil {
			logging.ActivityWarn("image pick failed for %s/%s: %v", p.Username, game, err)
			image = ""
		}
	}

	post, err := o.store.AddPost(ctx, store.Post{
		ForumID:   forum.ID,
		Author:    p.Username,
		Simulated: true,
		Body:      text,
		Image:     image,
	})
	if err != nil {
		return failure("failed to persist post", err)
	}

	logging.Activity("%s posted %s to %s/%s", p.Username, post.ID, game, forum.Category)
	details := map[string]string{
		"game":     game,
		"category": string(forum.Category),
		"forum_id": forum.ID,
		"post_id":  post.ID,
		"text":     text,
	}
	if image != "" {
		details["image"] = image
	}
	return success("forum post created", details)
}
