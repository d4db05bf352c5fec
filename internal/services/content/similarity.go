package content

import (
	"fmt"
	"strings"
	"unicode"
)

// SimilarityFunc scores two texts in [0,1]. Implementations must be symmetric.
type SimilarityFunc func(a, b string) float64

const (
	TokenJaccard   = "token_jaccard"
	ShingleJaccard = "shingle_jaccard"
)

// NewSimilarity resolves a similarity function by name.
func NewSimilarity(name string, shingleSize int) (SimilarityFunc, error) {
	switch name {
	case "", TokenJaccard:
		return TokenSetJaccard, nil
	case ShingleJaccard:
		if shingleSize < 1 {
			shingleSize = 3
		}
		return func(a, b string) float64 { return ShingleSetJaccard(a, b, shingleSize) }, nil
	default:
		return nil, fmt.Errorf("unknown similarity function %q", name)
	}
}

// Tokens lower-cases text and splits it on anything that is not a letter or digit.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Normalize collapses case, punctuation and whitespace.
func Normalize(text string) string {
	return strings.Join(Tokens(text), " ")
}

// TokenSetJaccard is |A∩B| / |A∪B| over the word sets of a and b.
func TokenSetJaccard(a, b string) float64 {
	return jaccard(toSet(Tokens(a)), toSet(Tokens(b)))
}

// ShingleSetJaccard is the Jaccard ratio over word n-grams of size n.
// Texts shorter than n use a single shingle of all their words.
func ShingleSetJaccard(a, b string, n int) float64 {
	return jaccard(shingles(Tokens(a), n), shingles(Tokens(b), n))
}

func shingles(tokens []string, n int) map[string]struct{} {
	set := make(map[string]struct{})
	if len(tokens) == 0 {
		return set
	}
	if len(tokens) < n {
		set[strings.Join(tokens, " ")] = struct{}{}
		return set
	}
	for i := 0; i+n <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+n], " ")] = struct{}{}
	}
	return set
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// jaccard of two sets. Two empty sets are identical; one empty set shares nothing.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for k := range small {
		if _, ok := large[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
