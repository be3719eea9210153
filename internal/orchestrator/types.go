// Package orchestrator executes the persona activities: ask a question,
// create a forum post, reply to a post. Each activity selects a game, drives
// the content generator with anti-duplication context, passes the moderation
// gate, and persists the result.
package orchestrator

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"forumagent/internal/generator"
	"forumagent/internal/images"
	"forumagent/internal/moderation"
	"forumagent/internal/persona"
	"forumagent/internal/resilience"
	"forumagent/internal/store"
)

// ActivityResult is the uniform return contract of every activity. Callers
// never need to distinguish generation failure from store failure from
// moderation failure structurally; only Err and Details differ.
type ActivityResult struct {
	Success bool
	Message string
	Details map[string]string
	Err     string
}

func success(message string, details map[string]string) ActivityResult {
	return ActivityResult{Success: true, Message: message, Details: details}
}

func failure(message string, err error) ActivityResult {
	r := ActivityResult{Success: false, Message: message}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// moderationFailure is the clean, non-retryable result for rejected content.
func moderationFailure(terms []string) ActivityResult {
	return ActivityResult{
		Success: false,
		Message: "content rejected by moderation",
		Err:     "moderation: " + strings.Join(terms, ", "),
		Details: map[string]string{"offending_terms": strings.Join(terms, ", ")},
	}
}

// Tuning holds the weights and thresholds the activities use. Lifted into an
// explicit struct so tests can override it in isolation.
type Tuning struct {
	// CategoryWeights is the fixed weighted distribution for forum post
	// categories.
	CategoryWeights map[store.Category]int
	// NewForumBias is the probability of steering a forum post toward a
	// game with zero or few active forums.
	NewForumBias float64
	// SimilarityThreshold above which a draft counts as a near-duplicate.
	SimilarityThreshold float64
	// MaxDraftAttempts bounds regeneration of too-similar drafts. The
	// last draft is accepted even if still too similar.
	MaxDraftAttempts int
	// TopicKeywords whose collision with a prior post rejects a draft.
	TopicKeywords []string
	// QuestionOpeners are the opener words tracked for lexical variety.
	QuestionOpeners []string
	// RecentWindow bounds "recent" content for anti-duplication.
	RecentWindow time.Duration
	// ReplyWindow bounds how old a post may be to still get a reply.
	ReplyWindow time.Duration
	// MaxAvoidTexts caps the previous texts fed to the generator.
	MaxAvoidTexts int
	// Retry is the schedule for external calls made by activities.
	Retry resilience.RetryConfig
}

// DefaultTuning returns the production weights.
func DefaultTuning() Tuning {
	return Tuning{
		CategoryWeights: map[store.Category]int{
			store.CategoryGameplay:  30,
			store.CategoryGeneral:   25,
			store.CategoryHelp:      20,
			store.CategorySpeedruns: 15,
			store.CategoryMods:      10,
		},
		NewForumBias:        0.6,
		SimilarityThreshold: 0.5,
		MaxDraftAttempts:    3,
		TopicKeywords: []string{
			"boss fight", "speedrun", "side quest", "crafting", "skill tree",
			"secret ending", "new game plus", "difficulty spike",
		},
		QuestionOpeners: []string{
			"How", "What", "Why", "Where", "When", "Which", "Does", "Is", "Can", "Should",
		},
		RecentWindow:  14 * 24 * time.Hour,
		ReplyWindow:   7 * 24 * time.Hour,
		MaxAvoidTexts: 5,
		Retry:         resilience.DefaultRetryConfig(),
	}
}

// Orchestrator wires the activities to their collaborators.
type Orchestrator struct {
	store    *store.Store
	registry *persona.Registry
	gen      *generator.Generator
	mod      moderation.Checker
	images   *images.Picker
	qa       QAClient
	tuning   Tuning

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// New creates an Orchestrator.
func New(st *store.Store, reg *persona.Registry, gen *generator.Generator, mod moderation.Checker, picker *images.Picker, qa QAClient, tuning Tuning) *Orchestrator {
	return &Orchestrator{
		store:    st,
		registry: reg,
		gen:      gen,
		mod:      mod,
		images:   picker,
		qa:       qa,
		tuning:   tuning,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// Registry exposes the persona registry for callers wiring scheduled tasks.
func (o *Orchestrator) Registry() *persona.Registry { return o.registry }

func (o *Orchestrator) randFloat() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.Float64()
}

func (o *Orchestrator) randIntn(n int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.Intn(n)
}
