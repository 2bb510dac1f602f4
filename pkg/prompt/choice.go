package prompt

import "github.com/aretw0/arbor/pkg/recognize"

// MatchChoice resolves free text against a list of choices: title, value and
// synonym matches first (case-insensitive, punctuation ignored), then
// positional numbers when enabled ("2", "the second one", "last"). It
// returns the zero-based index of the match.
func MatchChoice(text, locale string, choices []Choice, includeNumbers bool) (int, bool) {
	normalized := recognize.Normalize(text)
	if normalized == "" || len(choices) == 0 {
		return 0, false
	}
	for i, c := range choices {
		if matchesChoice(normalized, c) {
			return i, true
		}
	}
	if !includeNumbers {
		return 0, false
	}
	best, ok := recognize.Best(recognize.Number().Recognize(text, locale))
	if !ok {
		return 0, false
	}
	n, ok := best.Value.(int)
	if !ok {
		return 0, false
	}
	if n == -1 {
		return len(choices) - 1, true
	}
	if n >= 1 && n <= len(choices) {
		return n - 1, true
	}
	return 0, false
}

func matchesChoice(normalized string, c Choice) bool {
	if t := recognize.Normalize(c.Title); t != "" && t == normalized {
		return true
	}
	if v := recognize.Normalize(c.Value); v != "" && v == normalized {
		return true
	}
	for _, s := range c.Synonyms {
		if n := recognize.Normalize(s); n != "" && n == normalized {
			return true
		}
	}
	return false
}
