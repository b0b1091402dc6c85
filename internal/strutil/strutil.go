// Package strutil holds small string helpers shared by configuration parsing.
package strutil

import (
	"strings"
)

// LevenshteinDistance calculates the case-insensitive edit distance between two strings
// using two rows instead of a full matrix.
func LevenshteinDistance(s1, s2 string) int {
	a := []rune(strings.ToLower(s1))
	b := []rune(strings.ToLower(s2))

	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// ClosestMatch finds the candidate nearest to input.
// Returns the empty string when nothing is within maxDistance.
func ClosestMatch(input string, candidates []string, maxDistance int) (string, int) {
	if len(candidates) == 0 {
		return "", -1
	}

	closest := ""
	minDistance := maxDistance + 1
	for _, c := range candidates {
		if d := LevenshteinDistance(input, c); d < minDistance {
			minDistance = d
			closest = c
		}
	}

	if minDistance <= maxDistance {
		return closest, minDistance
	}
	return "", minDistance
}

// Suggest returns a "did you mean" hint for input, or "" when no candidate is close.
func Suggest(input string, candidates []string) string {
	match, _ := ClosestMatch(input, candidates, 3)
	if match == "" {
		return "valid values: " + strings.Join(candidates, ", ")
	}
	return "did you mean " + `"` + match + `"?`
}
