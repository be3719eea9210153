package orchestrator

import (
	"context"
	"strings"

	"forumagent/internal/generator"
	"forumagent/internal/logging"
	"forumagent/internal/persona"
	"forumagent/internal/store"
)

// ReplyToPost finds a suitable unanswered post and has the persona reply to
// it. Experts prioritize their paired novice, then any novice persona; all
// personas fall back to other simulated posts, then to human posts.
func (o *Orchestrator) ReplyToPost(ctx context.Context, p *persona.Persona) ActivityResult {
	target, err := o.findReplyTarget(ctx, p)
	if err != nil {
		return failure("reply target lookup failed", err)
	}
	if target == nil {
		return failure("no unanswered posts to reply to", nil)
	}

	forum, err := o.store.GetForum(ctx, target.ForumID)
	if err != nil {
		return failure("target forum unavailable", err)
	}
	logging.Activity("%s replying to %s in %s/%s", p.Username, target.Author, forum.Game, forum.Category)

	text, err := o.gen.Generate(ctx, generator.Request{
		Persona:       p,
		Kind:          generator.KindReply,
		Game:          forum.Game,
		ReplyToAuthor: target.Author,
		ReplyToText:   target.Body,
	})
	if err != nil {
		return failure("reply generation failed", err)
	}

	modRes, err := o.mod.Check(ctx, text)
	if err != nil {
		return failure("moderation check failed", err)
	}
	if !modRes.Allowed {
		return moderationFailure(modRes.Terms)
	}

	if !strings.HasPrefix(text, "@") {
		text = "@" + target.Author + " " + text
	}

	// Resolve the reply-to reference against the forum's current document,
	// not the copy the target was selected from.
	replyTo := ""
	fresh, err := o.store.GetForum(ctx, target.ForumID)
	if err != nil {
		return failure("failed to reload forum", err)
	}
	for _, post := range fresh.Posts {
		if post.ID == target.ID {
			replyTo = post.ID
			break
		}
	}
	if replyTo == "" {
		logging.ActivityWarn("target post %s vanished from forum %s, posting without reply link", target.ID, forum.ID)
	}

	reply, err := o.store.AddPost(ctx, store.Post{
		ForumID:   forum.ID,
		Author:    p.Username,
		Simulated: true,
		Body:      text,
		ReplyTo:   replyTo,
	})
	if err != nil {
		return failure("failed to persist reply", err)
	}

	logging.Activity("%s replied to %s with %s", p.Username, target.Author, reply.ID)
	return success("reply posted", map[string]string{
		"game":        forum.Game,
		"forum_id":    forum.ID,
		"post_id":     reply.ID,
		"reply_to":    replyTo,
		"target_user": target.Author,
		"text":        text,
	})
}

// findReplyTarget picks the post to answer, newest first within the reply
// window:
//  1. (experts) an unanswered post from the paired novice, then any novice
//     persona
//  2. an unanswered post from another simulated persona
//  3. an unanswered content-bearing post from a human author, preferring
//     those, else any human post
func (o *Orchestrator) findReplyTarget(ctx context.Context, p *persona.Persona) (*store.Post, error) {
	since := o.now().Add(-o.tuning.ReplyWindow)
	unanswered, err := o.store.UnansweredPosts(ctx, p.Username, since)
	if err != nil {
		return nil, err
	}
	if len(unanswered) == 0 {
		return nil, nil
	}

	isNovice := make(map[string]bool)
	isSimulated := make(map[string]bool)
	for _, candidate := range o.registry.All() {
		isSimulated[candidate.Username] = true
		isNovice[candidate.Username] = candidate.Role == persona.RoleNovice
	}

	if p.IsExpert() {
		if p.PairedNovice != "" {
			for i := range unanswered {
				if strings.EqualFold(unanswered[i].Author, p.PairedNovice) {
					return &unanswered[i], nil
				}
			}
		}
		for i := range unanswered {
			if isNovice[unanswered[i].Author] {
				return &unanswered[i], nil
			}
		}
	}

	for i := range unanswered {
		if isSimulated[unanswered[i].Author] {
			return &unanswered[i], nil
		}
	}

	for i := range unanswered {
		if !unanswered[i].Simulated && strings.TrimSpace(unanswered[i].Body) != "" {
			return &unanswered[i], nil
		}
	}
	for i := range unanswered {
		if !unanswered[i].Simulated {
			return &unanswered[i], nil
		}
	}

	logging.ActivityDebug("%s found %d unanswered posts but none suitable", p.Username, len(unanswered))
	return nil, nil
}
