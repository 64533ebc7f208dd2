// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sort"
	"strings"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"

	"github.com/sk8brd/sk8brd/lib/editdistance"
)

const (
	// maxSuggestions caps SuggestBoard's result.
	maxSuggestions = 3

	// maxTypoDistance is the largest edit distance SuggestBoard treats as
	// a typo.
	maxTypoDistance = 3
)

// SuggestBoard ranks boards against a board name the daemon did not
// recognize, best match first. Abbreviations are matched with fzf. When
// nothing fuzzy-matches, boards within a small edit distance of the typed
// name (or of one of its dash-separated parts) are suggested instead.
func SuggestBoard(boards []string, typed string) []string {
	if typed == "" || len(boards) == 0 {
		return nil
	}
	// Case-insensitive matching expects a lower-case pattern.
	typed = strings.ToLower(typed)

	matches := fuzzyMatches(boards, typed)
	if len(matches) == 0 {
		matches = typoMatches(boards, typed)
	}

	suggestions := make([]string, 0, min(len(matches), maxSuggestions))
	for _, match := range matches[:min(len(matches), maxSuggestions)] {
		suggestions = append(suggestions, match.board)
	}
	return suggestions
}

type scoredBoard struct {
	board string
	score int
}

// fuzzyMatches returns boards containing typed as a subsequence, highest
// fzf score first.
func fuzzyMatches(boards []string, typed string) []scoredBoard {
	pattern := []rune(typed)
	slab := util.MakeSlab(100*1024, 2048)

	var matches []scoredBoard
	for _, board := range boards {
		chars := util.ToChars([]byte(board))
		result, _ := algo.FuzzyMatchV2(false, true, true, &chars, pattern, false, slab)
		if result.Start < 0 || result.Score <= 0 {
			continue
		}
		matches = append(matches, scoredBoard{board: board, score: result.Score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return len(matches[i].board) < len(matches[j].board)
	})
	return matches
}

// typoMatches returns boards within maxTypoDistance of typed, closest
// first. The score is the edit distance, so lower is better.
func typoMatches(boards []string, typed string) []scoredBoard {
	limit := min(maxTypoDistance, len(typed)-1)

	var matches []scoredBoard
	for _, board := range boards {
		name := strings.ToLower(board)
		distance := editdistance.Levenshtein(typed, name)
		for _, part := range strings.Split(name, "-") {
			distance = min(distance, editdistance.Levenshtein(typed, part))
		}
		if distance > limit {
			continue
		}
		matches = append(matches, scoredBoard{board: board, score: distance})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score < matches[j].score
		}
		return len(matches[i].board) < len(matches[j].board)
	})
	return matches
}
