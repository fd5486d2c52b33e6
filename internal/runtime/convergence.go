package runtime

import "github.com/agext/levenshtein"

// CheckConvergence reports whether every member's current output is
// identical to, or at least threshold-similar to, its previous output.
// Similarity is normalized Levenshtein distance over runes. An empty previous
// round never converges.
func CheckConvergence(prev, curr map[string]string, threshold float64) bool {
	if len(prev) == 0 || len(curr) == 0 {
		return false
	}
	for id, c := range curr {
		p, ok := prev[id]
		if !ok {
			return false
		}
		if p == c {
			continue
		}
		if levenshtein.Similarity(p, c, nil) < threshold {
			return false
		}
	}
	return true
}
