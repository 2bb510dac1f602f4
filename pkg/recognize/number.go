package recognize

import (
	"strconv"
	"strings"
)

// numberTerms map spelled-out numbers of one language to their values.
// Cardinals cover 1..10, ordinals 1..5, which is plenty for picking from a
// presented list.
type numberTerms struct {
	cardinals map[string]int
	ordinals  map[string]int
}

var numberTable = map[string]numberTerms{
	"en": {
		cardinals: map[string]int{
			"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
			"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
		},
		ordinals: map[string]int{
			"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
			"last": -1,
		},
	},
	"pt": {
		cardinals: map[string]int{
			"um": 1, "uma": 1, "dois": 2, "duas": 2, "três": 3, "tres": 3,
			"quatro": 4, "cinco": 5, "seis": 6, "sete": 7, "oito": 8,
			"nove": 9, "dez": 10,
		},
		ordinals: map[string]int{
			"primeiro": 1, "primeira": 1, "segundo": 2, "segunda": 2,
			"terceiro": 3, "terceira": 3, "quarto": 4, "quinto": 5,
			"último": -1, "ultimo": -1,
		},
	},
	"es": {
		cardinals: map[string]int{
			"uno": 1, "un": 1, "una": 1, "dos": 2, "tres": 3, "cuatro": 4,
			"cinco": 5, "seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10,
		},
		ordinals: map[string]int{
			"primero": 1, "primera": 1, "segundo": 2, "segunda": 2,
			"tercero": 3, "tercera": 3, "cuarto": 4, "quinto": 5,
			"último": -1, "ultimo": -1,
		},
	},
	"fr": {
		cardinals: map[string]int{
			"un": 1, "une": 1, "deux": 2, "trois": 3, "quatre": 4, "cinq": 5,
			"six": 6, "sept": 7, "huit": 8, "neuf": 9, "dix": 10,
		},
		ordinals: map[string]int{
			"premier": 1, "première": 1, "premiere": 1, "deuxième": 2,
			"deuxieme": 2, "second": 2, "seconde": 2, "troisième": 3,
			"troisieme": 3, "quatrième": 4, "quatrieme": 4, "cinquième": 5,
			"cinquieme": 5, "dernier": -1,
		},
	},
	"de": {
		cardinals: map[string]int{
			"eins": 1, "ein": 1, "eine": 1, "zwei": 2, "drei": 3, "vier": 4,
			"fünf": 5, "funf": 5, "sechs": 6, "sieben": 7, "acht": 8,
			"neun": 9, "zehn": 10,
		},
		ordinals: map[string]int{
			"erste": 1, "erster": 1, "zweite": 2, "zweiter": 2, "dritte": 3,
			"dritter": 3, "vierte": 4, "fünfte": 5, "funfte": 5,
			"letzte": -1, "letzter": -1,
		},
	},
}

type numberRecognizer struct{}

// Number recognizes small integers written as digits, cardinals or
// ordinals. Ordinals carry the list-picking intent ("the second one") and
// outscore cardinal words; -1 means "the last one" and callers resolve it
// against their list length.
func Number() Recognizer {
	return numberRecognizer{}
}

func (numberRecognizer) Recognize(text, locale string) []Candidate {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}
	terms, ok := numberTable[langOf(locale)]
	if !ok {
		terms = numberTable["en"]
	}

	if n, err := strconv.Atoi(normalized); err == nil {
		return []Candidate{{Value: n, Score: 1}}
	}
	if n, ok := terms.cardinals[normalized]; ok {
		return []Candidate{{Value: n, Score: 1}}
	}
	if n, ok := terms.ordinals[normalized]; ok {
		return []Candidate{{Value: n, Score: 1}}
	}

	seen := make(map[int]float64)
	for _, token := range strings.Fields(normalized) {
		switch {
		case digitToken(token):
			n, _ := strconv.Atoi(token)
			record(seen, n, 0.9)
		default:
			if n, ok := terms.ordinals[token]; ok {
				record(seen, n, 0.8)
			} else if n, ok := terms.cardinals[token]; ok {
				record(seen, n, 0.6)
			}
		}
	}
	var out []Candidate
	for n, score := range seen {
		out = append(out, Candidate{Value: n, Score: score})
	}
	return out
}

func digitToken(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func record(seen map[int]float64, n int, score float64) {
	if score > seen[n] {
		seen[n] = score
	}
}
