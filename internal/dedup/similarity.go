package dedup

import (
	"github.com/pmezard/go-difflib/difflib"
)

// Similarity returns the Ratcliff/Obershelp ratio 2*M/T of a and b over runes,
// where M is the number of matched runes and T the total length. Two empty
// strings are identical (1); an empty string against a non-empty one scores 0.
func Similarity(a, b string) float64 {
	ra, rb := splitRunes(a), splitRunes(b)
	switch {
	case len(ra) == 0 && len(rb) == 0:
		return 1
	case len(ra) == 0 || len(rb) == 0:
		return 0
	}
	return difflib.NewMatcher(ra, rb).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
