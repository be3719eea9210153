package generator

import (
	"fmt"
	"strings"

	"forumagent/internal/persona"
)

// ContentKind selects the prompt template for a generation request.
type ContentKind int

const (
	KindQuestion ContentKind = iota
	KindForumPost
	KindReply
)

func (k ContentKind) String() string {
	switch k {
	case KindQuestion:
		return "question"
	case KindForumPost:
		return "forum_post"
	case KindReply:
		return "reply"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Request describes one piece of content to generate.
type Request struct {
	Persona *persona.Persona
	Kind    ContentKind
	Game    string
	Genre   string
	// Category is the forum category for forum posts.
	Category string

	// AvoidTexts are previous texts the output must not resemble.
	AvoidTexts []string
	// Openers are under-used question-opener words to push toward lexical
	// variety (questions only).
	Openers []string

	// Reply context.
	ReplyToAuthor string
	ReplyToText   string
}

// BuildPrompt assembles the persona- and topic-specific system and user
// prompts for a request.
func BuildPrompt(req Request) (system, user string) {
	p := req.Persona

	var sys strings.Builder
	fmt.Fprintf(&sys, "You are %s, a %s gamer posting on a community forum.\n", p.Username, p.Role)
	if p.Style != "" {
		fmt.Fprintf(&sys, "Writing style: %s.\n", p.Style)
	}
	if len(p.Traits) > 0 {
		fmt.Fprintf(&sys, "Personality traits: %s.\n", strings.Join(p.Traits, ", "))
	}
	if req.Genre != "" {
		fmt.Fprintf(&sys, "You mostly play %s games.\n", req.Genre)
	}
	sys.WriteString("Write in first person as a real forum user. Plain text only, no markdown, no hashtags.\n")
	// Accuracy guardrails: inventing in-game proper nouns reads as fake.
	sys.WriteString("Stay accurate: do not invent item names, character names, or quest names. ")
	sys.WriteString("If you are unsure of a detail, describe it generically instead of naming it.\n")

	var usr strings.Builder
	switch req.Kind {
	case KindQuestion:
		fmt.Fprintf(&usr, "Write one question about the game \"%s\" that you would ask a community Q&A service.\n", req.Game)
		if aff := p.AffinityFor(req.Game); aff != nil && len(aff.Struggles) > 0 {
			fmt.Fprintf(&usr, "You are struggling with: %s.\n", strings.Join(aff.Struggles, ", "))
		}
		if len(req.Openers) > 0 {
			fmt.Fprintf(&usr, "Start the question with one of these words: %s.\n", strings.Join(req.Openers, ", "))
		}
		usr.WriteString("Keep it to one or two sentences.\n")
	case KindForumPost:
		fmt.Fprintf(&usr, "Write a forum post for the \"%s\" board about the game \"%s\".\n", req.Category, req.Game)
		if aff := p.AffinityFor(req.Game); aff != nil {
			if len(aff.Struggles) > 0 {
				fmt.Fprintf(&usr, "Mention what you are struggling with: %s.\n", strings.Join(aff.Struggles, ", "))
			}
			if len(aff.Expertise) > 0 {
				fmt.Fprintf(&usr, "Share something from your experience with: %s.\n", strings.Join(aff.Expertise, ", "))
			}
		}
		usr.WriteString("Two to four sentences.\n")
	case KindReply:
		fmt.Fprintf(&usr, "Write a reply to a forum post by %s about the game \"%s\".\n", req.ReplyToAuthor, req.Game)
		fmt.Fprintf(&usr, "Their post:\n%s\n", req.ReplyToText)
		usr.WriteString("Address their specific situation; reference what they said. Two to four sentences.\n")
	}

	// The exact title must appear so readers and search land on the right game.
	fmt.Fprintf(&usr, "Mention the game title \"%s\" exactly as written.\n", req.Game)

	if len(req.AvoidTexts) > 0 {
		usr.WriteString("\nDo NOT repeat the wording, phrasing, or topic focus of these previous texts:\n")
		for i, prev := range req.AvoidTexts {
			fmt.Fprintf(&usr, "%d. %s\n", i+1, truncate(prev, 240))
		}
	}

	return sys.String(), usr.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
