// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestSuggestFlag(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flagSet.StringP("board", "b", "", "")
	flagSet.String("identity", "", "")
	flagSet.Bool("power-cycle", false, "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"typo", []string{"--bord"}, "--board"},
		{"typo with value", []string{"--identiy=key"}, "--identity"},
		{"after known flags", []string{"-b", "x", "--power-cylce"}, "--power-cycle"},
		{"nothing close", []string{"--completely-different"}, ""},
		{"after terminator", []string{"--", "--bord"}, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := suggestFlag(test.args, flagSet); got != test.want {
				t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
			}
		})
	}
}
