// Package transcript cleans recognised text before it is handed downstream.
//
// Learners usually run the wake phrase straight into the question ("Hello
// Chippy, what is photosynthesis?"), so the recogniser hears both. [Stripper]
// removes the leading wake phrase, tolerating the spelling variants a
// recogniser produces for an unusual name.
package transcript

import (
	"strings"
	"unicode"

	"github.com/chippy-tutor/chippy/internal/transcript/phonetic"
)

// maxLead is the number of filler tokens ("um", "okay") allowed before the
// wake phrase.
const maxLead = 2

// Stripper removes a leading wake phrase from transcripts.
type Stripper struct {
	words   []string
	matcher *phonetic.Matcher
}

// NewStripper returns a Stripper for phrase, e.g. "hello chippy". A nil
// matcher selects [phonetic.New] defaults. An empty phrase yields a Stripper
// that only trims whitespace.
func NewStripper(phrase string, matcher *phonetic.Matcher) *Stripper {
	if matcher == nil {
		matcher = phonetic.New()
	}
	var words []string
	for _, f := range strings.Fields(phrase) {
		if w := normalize(f); w != "" {
			words = append(words, w)
		}
	}
	return &Stripper{words: words, matcher: matcher}
}

// Strip returns text with the leading wake phrase removed. When the full
// phrase is not found, the last phrase word (the name) alone is accepted
// near the start. Text without the phrase is returned trimmed but otherwise
// unchanged; text holding only the phrase yields "".
func (s *Stripper) Strip(text string) string {
	toks := strings.Fields(text)
	if len(s.words) == 0 || len(toks) == 0 {
		return strings.TrimSpace(text)
	}
	norm := make([]string, len(toks))
	for i, t := range toks {
		norm[i] = normalize(t)
	}

	for lead := 0; lead <= maxLead && lead < len(norm); lead++ {
		if end, ok := s.align(norm, lead); ok {
			return remainder(toks, end)
		}
	}

	name := s.words[len(s.words)-1]
	limit := min(len(norm), len(s.words)+maxLead)
	for i := 0; i < limit; i++ {
		if n, ok := s.matchAt(norm, i, name); ok {
			return remainder(toks, i+n)
		}
	}
	return strings.TrimSpace(text)
}

// align matches every phrase word in order from start and returns the index
// just past the phrase.
func (s *Stripper) align(norm []string, start int) (int, bool) {
	pos := start
	for _, w := range s.words {
		n, ok := s.matchAt(norm, pos, w)
		if !ok {
			return 0, false
		}
		pos += n
	}
	return pos, true
}

// matchAt reports whether word matches the token at i, or the tokens at i
// and i+1 run together ("chip e"), and how many tokens it consumed.
func (s *Stripper) matchAt(norm []string, i int, word string) (int, bool) {
	if i >= len(norm) || norm[i] == "" {
		return 0, false
	}
	if s.matcher.Similar(norm[i], word) {
		return 1, true
	}
	if i+1 < len(norm) && norm[i+1] != "" && s.matcher.Similar(norm[i]+norm[i+1], word) {
		return 2, true
	}
	return 0, false
}

func remainder(toks []string, from int) string {
	rest := strings.Join(toks[from:], " ")
	return strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}

// normalize lower-cases tok and drops surrounding punctuation.
func normalize(tok string) string {
	return strings.ToLower(strings.TrimFunc(tok, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
}
