package transition

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// suggestLimit bounds the edit distance of a suggestion by name length.
func suggestLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

// Suggest returns the candidate closest to name, or "" when none is close
// enough to be a likely typo.
func Suggest(name string, candidates []string) string {
	best, bestDist := "", -1
	lower := strings.ToLower(name)
	for _, c := range candidates {
		dist := levenshtein.ComputeDistance(lower, strings.ToLower(c))
		if dist > suggestLimit(len(c)) {
			continue
		}
		if bestDist < 0 || dist < bestDist || (dist == bestDist && c < best) {
			best, bestDist = c, dist
		}
	}
	return best
}

func didYouMean(name string, candidates []string) string {
	if s := Suggest(name, candidates); s != "" {
		return " (did you mean " + `"` + s + `"?)`
	}
	return ""
}
