package ranking

import (
	"regexp"
	"strings"
)

// tokenPattern matches runs of lowercase ASCII letters and digits
var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// TokenSet is a set of normalized tokens
type TokenSet map[string]struct{}

// Tokenize lowercases text and returns the set of its alphanumeric tokens.
// Anything outside [a-z0-9] separates tokens. No stemming or stopword removal.
func Tokenize(text string) TokenSet {
	if text == "" {
		return TokenSet{}
	}

	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := make(TokenSet, len(matches))
	for _, m := range matches {
		tokens[m] = struct{}{}
	}
	return tokens
}

// Contains reports whether token is in the set
func (ts TokenSet) Contains(token string) bool {
	_, ok := ts[token]
	return ok
}

// Overlap counts the tokens present in both sets
func (ts TokenSet) Overlap(other TokenSet) int {
	small, large := ts, other
	if len(small) > len(large) {
		small, large = large, small
	}

	count := 0
	for token := range small {
		if large.Contains(token) {
			count++
		}
	}
	return count
}
