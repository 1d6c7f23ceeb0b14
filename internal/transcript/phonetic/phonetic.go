// Package phonetic snaps misheard words onto a known vocabulary.
//
// A phrase matches a term when their Double Metaphone codes overlap and their
// Jaro-Winkler similarity reaches the phonetic threshold. Without any code
// overlap a term can still match on Jaro-Winkler alone, but only above the
// stricter fuzzy threshold.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	DefaultPhoneticThreshold = 0.70
	DefaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity for a phonetic match.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity for a match without code
// overlap.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the default thresholds.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: DefaultPhoneticThreshold,
		fuzzyThreshold:    DefaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is a vocabulary entry with its codes computed once.
type term struct {
	canonical string
	lower     string
	tokens    []string
	codes     map[string]struct{}
}

// Terms is a prepared vocabulary. Build it once with [Prepare] and reuse it
// for every phrase of a transcript.
type Terms struct {
	terms    []term
	maxWords int
}

// Prepare computes the phonetic codes of every non-empty term.
func Prepare(vocabulary []string) *Terms {
	ts := &Terms{}
	for _, v := range vocabulary {
		lower := strings.ToLower(strings.TrimSpace(v))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		ts.terms = append(ts.terms, term{
			canonical: strings.TrimSpace(v),
			lower:     lower,
			tokens:    tokens,
			codes:     codes(tokens),
		})
		ts.maxWords = max(ts.maxWords, len(tokens))
	}
	return ts
}

// MaxWords is the word count of the longest term.
func (ts *Terms) MaxWords() int { return ts.maxWords }

// Len is the number of terms.
func (ts *Terms) Len() int { return len(ts.terms) }

// Match returns the vocabulary term closest to phrase. When nothing is close
// enough it returns phrase unchanged, zero and false.
func (m *Matcher) Match(phrase string, vocabulary []string) (string, float64, bool) {
	return m.MatchPrepared(phrase, Prepare(vocabulary))
}

// MatchPrepared is [Matcher.Match] against a prepared vocabulary.
func (m *Matcher) MatchPrepared(phrase string, ts *Terms) (string, float64, bool) {
	lower := strings.ToLower(strings.TrimSpace(phrase))
	if lower == "" || ts == nil || len(ts.terms) == 0 {
		return phrase, 0, false
	}
	tokens := strings.Fields(lower)
	in := codes(tokens)

	var (
		best      string
		bestScore float64
		bestByKey bool
	)
	for _, t := range ts.terms {
		score := similarity(tokens, t.tokens, lower, t.lower)
		if overlap(in, t.codes) {
			if score >= m.phoneticThreshold && (!bestByKey || score > bestScore) {
				best, bestScore, bestByKey = t.canonical, score, true
			}
			continue
		}
		if !bestByKey && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t.canonical, score
		}
	}
	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

func codes(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			out[primary] = struct{}{}
		}
		if secondary != "" {
			out[secondary] = struct{}{}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the whole phrases, the
// phrases with spaces removed, and every token pair.
func similarity(inTokens, termTokens []string, in, t string) float64 {
	score := matchr.JaroWinkler(in, t, false)
	if len(inTokens) > 1 || len(termTokens) > 1 {
		score = max(score, matchr.JaroWinkler(strings.Join(inTokens, ""), strings.Join(termTokens, ""), false))
	}
	for _, a := range inTokens {
		for _, b := range termTokens {
			score = max(score, matchr.JaroWinkler(a, b, false))
		}
	}
	return score
}
