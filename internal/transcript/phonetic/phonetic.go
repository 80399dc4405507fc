// Package phonetic decides whether two spoken words sound alike, using
// Double Metaphone encoding with Jaro-Winkler similarity as a tie-breaker.
//
// Two words are similar when
//
//  1. they share a Double Metaphone code (primary or alternate) and their
//     Jaro-Winkler score reaches the phonetic threshold (default 0.80), or
//  2. they share no code but their Jaro-Winkler score reaches the stricter
//     fuzzy threshold (default 0.90).
//
// Recognisers spell an unusual name in many ways ("Chippy", "chippie",
// "chip e"); all of them encode to the same consonant skeleton.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for words that
// share a phonetic code. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for words without
// a shared phonetic code. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher compares words. It is read-only after construction and safe for
// concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Score returns the Jaro-Winkler similarity of a and b (case-insensitive)
// and whether they share a Double Metaphone code.
func (m *Matcher) Score(a, b string) (score float64, phonetic bool) {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0, false
	}
	if a == b {
		return 1, true
	}
	return matchr.JaroWinkler(a, b, false), codesOverlap(codes(a), codes(b))
}

// Similar reports whether a and b sound alike.
func (m *Matcher) Similar(a, b string) bool {
	score, phonetic := m.Score(a, b)
	if phonetic {
		return score >= m.phoneticThreshold
	}
	return score >= m.fuzzyThreshold
}

// codes returns the non-empty Double Metaphone codes of word.
func codes(word string) []string {
	p, s := matchr.DoubleMetaphone(word)
	out := make([]string, 0, 2)
	if p != "" {
		out = append(out, p)
	}
	if s != "" && s != p {
		out = append(out, s)
	}
	return out
}

func codesOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
