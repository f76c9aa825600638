package store

import (
	"strings"
	"unicode"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// NegationPrefix marks a stem that appeared in a negated context.
const NegationPrefix = "!"

// negationScope is the number of content words a negation word applies to
// when no clause boundary ends it earlier.
const negationScope = 3

// negationWords start a negated context. Contractions are listed without the
// apostrophe because apostrophes are removed before splitting.
var negationWords = map[string]struct{}{
	"not": {}, "no": {}, "nor": {}, "never": {}, "cannot": {}, "without": {},
	"dont": {}, "doesnt": {}, "didnt": {}, "isnt": {}, "arent": {}, "wasnt": {},
	"werent": {}, "cant": {}, "couldnt": {}, "wont": {}, "wouldnt": {},
	"shouldnt": {}, "hasnt": {}, "havent": {}, "hadnt": {}, "aint": {},
}

// NormalizeForEmbedding lowercases text and removes every character that is
// not a letter, digit, underscore or whitespace.
func NormalizeForEmbedding(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Tokenizer turns text into stemmed, stopword-free terms.
// The same Tokenizer must be used for indexed candidates and queries.
type Tokenizer struct {
	stopWords map[string]struct{}
}

// NewTokenizer creates a tokenizer with the given stopword list.
// A nil list uses DefaultStopWords.
func NewTokenizer(stopWords []string) *Tokenizer {
	if stopWords == nil {
		stopWords = DefaultStopWords
	}
	return &Tokenizer{stopWords: BuildStopWordMap(stopWords)}
}

// Tokenize splits text into words, drops stopwords, stems the rest and
// prefixes stems that follow a negation word with NegationPrefix.
//
// A negation covers the next negationScope content words or runs until a
// clause boundary (. , ; : ! ?), whichever comes first.
func (t *Tokenizer) Tokenize(text string) []string {
	// Return empty slice, not nil, for consistent API behavior
	tokens := []string{}

	negated := 0
	for _, w := range splitWords(text) {
		if w.boundary {
			negated = 0
			continue
		}
		if _, ok := negationWords[w.text]; ok {
			negated = negationScope
			continue
		}
		if _, stop := t.stopWords[w.text]; stop {
			continue
		}

		stem := porterstemmer.StemString(w.text)
		if stem == "" {
			continue
		}
		if negated > 0 {
			stem = NegationPrefix + stem
			negated--
		}
		tokens = append(tokens, stem)
	}

	return tokens
}

// word is a lowercase word or a clause boundary marker.
type word struct {
	text     string
	boundary bool
}

// splitWords lowercases text, removes apostrophes so contractions stay whole,
// and splits on every non letter/digit rune.
func splitWords(text string) []word {
	var words []word
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, word{text: current.String()})
			current.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		case r == '\'' || r == '’':
			// don't -> dont
		case isClauseBoundary(r):
			flush()
			words = append(words, word{boundary: true})
		default:
			flush()
		}
	}
	flush()

	return words
}

func isClauseBoundary(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '!', '?':
		return true
	}
	return false
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
