package extract

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// TokenSet is a set of normalized tokens.
type TokenSet map[string]struct{}

// NewTokenSet builds a set from already-normalized tokens.
func NewTokenSet(tokens ...string) TokenSet {
	set := make(TokenSet, len(tokens))
	for _, t := range tokens {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

// Len returns the number of distinct tokens.
func (s TokenSet) Len() int {
	return len(s)
}

// Has reports whether token is in the set.
func (s TokenSet) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Slice returns the tokens in ascending order.
func (s TokenSet) Slice() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Tokenize turns free text into a set of normalized tokens.
//
// Text is NFKC-normalized and case-folded; every rune that is not a letter,
// digit or combining mark separates tokens. Stop-words are kept because
// matching relies on raw overlap. Empty input yields an empty set.
func Tokenize(text string) TokenSet {
	if strings.TrimSpace(text) == "" {
		return TokenSet{}
	}

	// A Caser is stateful, so each call gets its own.
	folded := cases.Fold().String(norm.NFKC.String(text))

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})

	set := make(TokenSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// TokenizeAll tokenizes the concatenation of parts separated by spaces.
func TokenizeAll(parts ...string) TokenSet {
	return Tokenize(strings.Join(parts, " "))
}
