// Package generator produces persona-appropriate forum content through the
// generative text service, choosing a model tier by the target game's
// release date and post-processing the raw output.
package generator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"forumagent/internal/logging"
	"forumagent/internal/resilience"
)

// ErrContentTooShort marks output rejected by post-processing. It is
// permanent for the producing model call but forces the caller onto the next
// strategy or draft attempt.
var ErrContentTooShort = errors.New("generated content below minimum length")

// MinContentLength is the shortest output accepted as valid.
const MinContentLength = 20

// Config configures the generator.
type Config struct {
	// DefaultModel handles games released before KnowledgeCutoff.
	DefaultModel string
	// FreshModel is the newer-knowledge tier for post-cutoff releases.
	// Unknown release dates conservatively prefer this tier.
	FreshModel string
	// KnowledgeCutoff splits the two tiers.
	KnowledgeCutoff time.Time
	// ReleaseDates maps game title to release date.
	ReleaseDates map[string]time.Time
	// CallTimeout bounds a single service call.
	CallTimeout time.Duration
	// Retry controls per-strategy retry of transient failures.
	Retry resilience.RetryConfig
}

// Generator wraps the generative text service.
type Generator struct {
	client TextClient
	cfg    Config
}

// New creates a Generator.
func New(client TextClient, cfg Config) *Generator {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 45 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	return &Generator{client: client, cfg: cfg}
}

// modelStrategies returns the ordered model tiers to try for a game. The
// default tier gets one automatic fallback to the newer tier; games the
// default tier cannot know about skip straight to the newer tier.
func (g *Generator) modelStrategies(game string) []string {
	release, known := g.cfg.ReleaseDates[game]
	if !known || release.After(g.cfg.KnowledgeCutoff) {
		return []string{g.cfg.FreshModel}
	}
	return []string{g.cfg.DefaultModel, g.cfg.FreshModel}
}

// Generate produces one piece of content for the request. Each model tier is
// tried in order; transient service failures are retried with backoff inside
// a tier before falling through to the next.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	system, user := BuildPrompt(req)
	strategies := g.modelStrategies(req.Game)

	var lastErr error
	for _, model := range strategies {
		logging.GeneratorDebug("generating %s for %s via %s (game=%s)",
			req.Kind, req.Persona.Username, model, req.Game)

		out, err := resilience.RetryValue(ctx, g.cfg.Retry, func(ctx context.Context) (string, error) {
			var raw string
			callErr := resilience.WithTimeout(ctx, g.cfg.CallTimeout, func(ctx context.Context) error {
				var innerErr error
				raw, innerErr = g.client.Generate(ctx, model, system, user)
				return innerErr
			})
			if callErr != nil {
				return "", callErr
			}
			cleaned := Clean(raw)
			if len(cleaned) < MinContentLength {
				return "", resilience.Permanent(fmt.Errorf("%w: %d chars", ErrContentTooShort, len(cleaned)))
			}
			return cleaned, nil
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		logging.GeneratorWarn("model %s failed for %s, trying next tier: %v", model, req.Game, err)
	}

	return "", fmt.Errorf("all model tiers failed for %q: %w", req.Game, lastErr)
}

var labelPrefixRe = regexp.MustCompile(`(?i)^(question|answer|post|reply|title|response)\s*:\s*`)

// Clean strips wrapping quotes and label prefixes the service tends to add.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)

	for {
		trimmed := labelPrefixRe.ReplaceAllString(s, "")
		trimmed = trimWrappingQuotes(strings.TrimSpace(trimmed))
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return s
}

func trimWrappingQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	pairs := [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}, {"`", "`"}}
	for _, p := range pairs {
		if strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, p[0]), p[1]))
		}
	}
	return s
}
