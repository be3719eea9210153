// Package moderation gates generated content before it reaches the forum
// store. The production deployment points Checker at the shared moderation
// service; TermListChecker is the built-in fallback.
package moderation

import (
	"context"
	"strings"

	"forumagent/internal/logging"
)

// Result is the outcome of a moderation check. When Allowed is false, Terms
// carries the offending markers for the failure result.
type Result struct {
	Allowed bool
	Terms   []string
}

// Checker decides whether generated text may be published. A rejection is a
// clean, non-retryable outcome, not an error; errors are reserved for the
// checker itself being unreachable.
type Checker interface {
	Check(ctx context.Context, text string) (Result, error)
}

// TermListChecker rejects text containing any of a fixed list of disallowed
// terms, matched case-insensitively.
type TermListChecker struct {
	terms []string
}

// NewTermListChecker builds a checker over the given terms. With no terms it
// uses DefaultBlockedTerms.
func NewTermListChecker(terms ...string) *TermListChecker {
	if len(terms) == 0 {
		terms = DefaultBlockedTerms()
	}
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return &TermListChecker{terms: lowered}
}

// Check implements Checker.
func (c *TermListChecker) Check(ctx context.Context, text string) (Result, error) {
	lower := strings.ToLower(text)
	var hits []string
	for _, t := range c.terms {
		if strings.Contains(lower, t) {
			hits = append(hits, t)
		}
	}
	if len(hits) > 0 {
		logging.ModerationWarn("content rejected (%d offending terms)", len(hits))
		return Result{Allowed: false, Terms: hits}, nil
	}
	return Result{Allowed: true}, nil
}

// DefaultBlockedTerms covers the categories the community rules disallow in
// simulated posts. Real deployments extend this via configuration.
func DefaultBlockedTerms() []string {
	return []string{
		"cheat engine",
		"cracked download",
		"free key",
		"kill yourself",
		"password dump",
		"pirated",
	}
}
