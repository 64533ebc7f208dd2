// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides small helpers shared by sk8brd tests.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so a hung goroutine fails the test instead of hanging it.
// [SyncBuffer] is a goroutine-safe bytes.Buffer for capturing console
// output written by one goroutine and inspected by another, and
// [Eventually] polls a condition until it holds.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
