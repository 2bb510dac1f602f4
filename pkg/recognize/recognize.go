package recognize

import (
	"strings"
	"unicode"
)

// Candidate is one interpretation of the input text.
type Candidate struct {
	// Value is the typed result (bool for Boolean, int for Number).
	Value any
	// Score ranks candidates; 1.0 is an exact match of the whole input.
	Score float64
}

// Recognizer extracts typed values from text for a locale. Implementations
// must be safe for concurrent use.
type Recognizer interface {
	Recognize(text, locale string) []Candidate
}

// Best returns the highest-scoring candidate. It reports false for an empty
// list and for a tie between different values, which callers should treat as
// "not recognized" rather than pick arbitrarily.
func Best(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	tie := false
	for _, c := range candidates[1:] {
		switch {
		case c.Score > best.Score:
			best, tie = c, false
		case c.Score == best.Score && c.Value != best.Value:
			tie = true
		}
	}
	if tie {
		return Candidate{}, false
	}
	return best, true
}

// Normalize lowercases the text and flattens punctuation to spaces so term
// tables match real typing ("Yes!", "sim,", "D'accord").
func Normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// langOf reduces a BCP 47 tag to its bare language ("pt-BR" to "pt").
func langOf(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	for i, r := range locale {
		if r == '-' || r == '_' {
			return locale[:i]
		}
	}
	return locale
}
