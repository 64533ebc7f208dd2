// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sk8brd/sk8brd/auth"
	"github.com/sk8brd/sk8brd/session"
)

// DiagnoseRejectedBoard explains a rejection when the requested board is
// not on the farm. It opens a second session without a board, fetches
// the board list, and if the board is missing returns a validation
// error suggesting the closest names. In every other case, including a
// failure to fetch the list, err is returned unchanged.
func DiagnoseRejectedBoard(ctx context.Context, err error, sessionConfig session.Config, oracle auth.SigningOracle) error {
	var rejected *auth.RejectedError
	board := sessionConfig.Board
	if board == "" || !errors.As(err, &rejected) || ctx.Err() != nil {
		return err
	}

	listConfig := sessionConfig
	listConfig.Board = ""
	listConfig.OnTransition = nil
	listing, newErr := session.New(listConfig, oracle)
	if newErr != nil {
		return err
	}
	boards, listErr := session.RunListBoards(ctx, listing)
	if listErr != nil || slices.Contains(boards, board) {
		return err
	}

	toolErr := Validation("board %q is not on this farm: %w", board, err)
	suggestions := session.SuggestBoard(boards, board)
	if len(suggestions) == 0 {
		return toolErr.WithHint("Run sk8brd-cli without --board to list the farm's boards.")
	}
	quoted := make([]string, len(suggestions))
	for i, suggestion := range suggestions {
		quoted[i] = fmt.Sprintf("%q", suggestion)
	}
	return toolErr.WithHint("Did you mean " + strings.Join(quoted, " or ") + "?")
}
