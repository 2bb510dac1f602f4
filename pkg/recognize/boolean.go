package recognize

import "strings"

// boolTerms are the affirmative and negative vocabularies of one language.
type boolTerms struct {
	yes []string
	no  []string
}

// boolTable covers the languages the built-in prompts localize for. Unknown
// languages fall back to English.
var boolTable = map[string]boolTerms{
	"en": {
		yes: []string{"yes", "y", "yeah", "yep", "sure", "ok", "okay", "true", "certainly"},
		no:  []string{"no", "n", "nope", "nah", "never", "false"},
	},
	"pt": {
		yes: []string{"sim", "s", "claro", "certo", "ok", "verdade", "positivo"},
		no:  []string{"não", "nao", "n", "nunca", "jamais", "falso", "negativo"},
	},
	"es": {
		yes: []string{"sí", "si", "s", "claro", "vale", "ok", "cierto"},
		no:  []string{"no", "n", "nunca", "jamás", "jamas", "falso"},
	},
	"fr": {
		yes: []string{"oui", "o", "ouais", "d'accord", "ok", "vrai"},
		no:  []string{"non", "n", "jamais", "faux"},
	},
	"de": {
		yes: []string{"ja", "j", "klar", "sicher", "ok", "wahr"},
		no:  []string{"nein", "n", "nie", "niemals", "falsch"},
	},
}

type booleanRecognizer struct{}

// Boolean recognizes yes/no answers. An exact match of the whole reply
// scores 1.0; a term buried in a longer sentence ("yes please") scores
// lower. A reply containing both polarities yields two candidates and Best
// rejects the tie.
func Boolean() Recognizer {
	return booleanRecognizer{}
}

func (booleanRecognizer) Recognize(text, locale string) []Candidate {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}
	terms, ok := boolTable[langOf(locale)]
	if !ok {
		terms = boolTable["en"]
	}

	var out []Candidate
	if score := termScore(normalized, terms.yes); score > 0 {
		out = append(out, Candidate{Value: true, Score: score})
	}
	if score := termScore(normalized, terms.no); score > 0 {
		out = append(out, Candidate{Value: false, Score: score})
	}
	return out
}

func termScore(normalized string, terms []string) float64 {
	for _, term := range terms {
		if normalized == term {
			return 1
		}
	}
	for _, token := range strings.Fields(normalized) {
		for _, term := range terms {
			if token == term {
				return 0.75
			}
		}
	}
	return 0
}
