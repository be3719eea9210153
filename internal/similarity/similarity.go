// Package similarity scores two text blobs for near-duplication. The
// orchestrator uses the score plus the keyword/number collision helpers to
// keep generated content from repeating itself across personas and time.
package similarity

import (
	"regexp"
	"strings"
)

const (
	wordWeight   = 0.4
	phraseWeight = 0.6

	// Words this short carry no topical signal.
	minWordLen = 4
)

var (
	punctRe  = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	spaceRe  = regexp.MustCompile(`\s+`)
	numberRe = regexp.MustCompile(`(?i)\b(?:chapter|level|act|stage|world|part|mission)\s*(\d+)\b`)
)

// Score returns a 0-1 near-duplication measure combining word overlap (over
// words longer than 3 characters) and bigram phrase overlap, with phrase
// overlap weighted higher. Exact normalized equality scores 1.0; if either
// input has no qualifying words the score is 0.0.
func Score(a, b string) float64 {
	na := normalize(a)
	nb := normalize(b)
	if na == nb && na != "" {
		return 1.0
	}

	wordsA := qualifyingWords(na)
	wordsB := qualifyingWords(nb)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	wordScore := jaccard(wordsA, wordsB)
	phraseScore := jaccard(bigrams(na), bigrams(nb))

	return wordWeight*wordScore + phraseWeight*phraseScore
}

// normalize lowercases, strips punctuation, and collapses whitespace.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = punctRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func qualifyingWords(normalized string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		if len(w) >= minWordLen {
			out[w] = struct{}{}
		}
	}
	return out
}

func bigrams(normalized string) map[string]struct{} {
	words := strings.Fields(normalized)
	out := make(map[string]struct{}, len(words))
	for i := 0; i+1 < len(words); i++ {
		out[words[i]+" "+words[i+1]] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	shared := 0
	for k := range a {
		if _, ok := b[k]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

// SharedNumbers reports whether both texts reference the same chapter/level
// style number ("chapter 4", "level 12"). Two posts about the same chapter
// read as duplicates even when the wording differs.
func SharedNumbers(a, b string) bool {
	numsA := extractNumbers(a)
	if len(numsA) == 0 {
		return false
	}
	for n := range extractNumbers(b) {
		if _, ok := numsA[n]; ok {
			return true
		}
	}
	return false
}

func extractNumbers(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, m := range numberRe.FindAllStringSubmatch(s, -1) {
		out[m[1]] = struct{}{}
	}
	return out
}

// SharedTopics reports whether both texts mention one of the given topic
// keywords. Keywords are matched case-insensitively on word boundaries
// against the normalized texts.
func SharedTopics(a, b string, topics []string) bool {
	na := " " + normalize(a) + " "
	nb := " " + normalize(b) + " "
	for _, topic := range topics {
		t := " " + normalize(topic) + " "
		if t == "  " {
			continue
		}
		if strings.Contains(na, t) && strings.Contains(nb, t) {
			return true
		}
	}
	return false
}
