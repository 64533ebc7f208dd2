// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package editdistance measures how far apart two short identifiers are.
// The command line uses it to suggest flags and the session layer uses it
// to suggest boards when a name is mistyped.
package editdistance

// Levenshtein computes the Levenshtein edit distance between two strings,
// byte by byte.
func Levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// One row of the distance matrix, updated in place.
	if len(a) > len(b) {
		a, b = b, a
	}

	previous := make([]int, len(a)+1)
	for i := range previous {
		previous[i] = i
	}

	for j := 1; j <= len(b); j++ {
		current := make([]int, len(a)+1)
		current[0] = j

		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[i] = min(previous[i]+1, current[i-1]+1, previous[i-1]+cost)
		}
		previous = current
	}
	return previous[len(a)]
}
