package lexical

import (
	"strings"
	"unicode"
)

// Stop-words for the bilingual (French/English) consulting corpus.
var stopWords = map[string]struct{}{
	// French
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {},
	"de": {}, "du": {}, "au": {}, "aux": {}, "et": {}, "ou": {},
	"en": {}, "dans": {}, "sur": {}, "par": {}, "pour": {}, "avec": {},
	"ce": {}, "cette": {}, "ces": {}, "est": {}, "sont": {}, "que": {},
	"qui": {}, "ne": {}, "pas": {}, "se": {}, "son": {}, "sa": {}, "ses": {},
	// English
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {},
	"to": {}, "was": {}, "were": {}, "with": {}, "this": {},
}

// accentFolder maps accented runes to their base form so "Marché" and
// "marche" index to the same term.
var accentFolder = strings.NewReplacer(
	"à", "a", "â", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"î", "i", "ï", "i",
	"ô", "o", "ö", "o",
	"ù", "u", "û", "u", "ü", "u",
	"ç", "c", "œ", "oe",
)

// Token is a single normalised term and its position in the token stream.
// Positions count surviving tokens, so phrase adjacency is checked against
// the same stream for documents and queries.
type Token struct {
	Term     string
	Position int
}

// Tokenize lower-cases, folds accents, splits on non-alphanumeric
// boundaries and removes stop-words.
func Tokenize(text string) []Token {
	text = accentFolder.Replace(strings.ToLower(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]Token, 0, len(words)/2)
	pos := 0
	for _, word := range words {
		if len(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		tokens = append(tokens, Token{Term: word, Position: pos})
		pos++
	}
	return tokens
}

// TokenizeTerms returns just the normalised terms.
func TokenizeTerms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}
