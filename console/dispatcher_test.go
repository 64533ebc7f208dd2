// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sk8brd/sk8brd/protocol"
)

// flatten renders events compactly: data as quoted text, commands by
// name.
func flatten(events []Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Data != nil {
			out = append(out, "data:"+string(ev.Data))
		} else {
			out = append(out, "cmd:"+ev.Command.String())
		}
	}
	return out
}

func TestDispatcherFeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		want      []string
		wantState State
	}{
		{"plain text", "ls -l\r", []string{"data:ls -l\r"}, Passthrough},
		{"quit", "\x01q", []string{"cmd:quit"}, Passthrough},
		{"power off after text", "dmesg\r\x01p", []string{"data:dmesg\r", "cmd:power-off"}, Passthrough},
		{"command splits text", "ab\x01Pcd", []string{"data:ab", "cmd:power-on", "data:cd"}, Passthrough},
		{"unmatched forwards both", "\x01z", []string{"data:\x01z"}, Passthrough},
		{"unmatched coalesces", "x\x01zy", []string{"data:x\x01zy"}, Passthrough},
		{"double prefix forwards both", "\x01\x01", []string{"data:\x01\x01"}, Passthrough},
		{"send prefix", "\x01a", []string{"cmd:send-prefix"}, Passthrough},
		{"all bindings", "\x01B\x01s\x01v\x01V", []string{"cmd:break", "cmd:status", "cmd:vbus-off", "cmd:vbus-on"}, Passthrough},
		{"trailing prefix", "abc\x01", []string{"data:abc"}, AwaitingCommandChar},
		{"empty", "", nil, Passthrough},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			dispatcher := NewDispatcher(DefaultPrefix, nil)
			got := flatten(dispatcher.Feed([]byte(test.input)))
			if strings.Join(got, "|") != strings.Join(test.want, "|") {
				t.Errorf("Feed(%q) = %q, want %q", test.input, got, test.want)
			}
			if dispatcher.State() != test.wantState {
				t.Errorf("state = %s, want %s", dispatcher.State(), test.wantState)
			}
		})
	}
}

func TestDispatcherQuitEmitsNoData(t *testing.T) {
	t.Parallel()
	events := NewDispatcher(DefaultPrefix, nil).Feed([]byte{DefaultPrefix, 'q'})
	if len(events) != 1 || events[0].Command != Quit || events[0].Data != nil {
		t.Fatalf("events = %+v, want exactly one Quit", events)
	}
}

func TestDispatcherPrefixAcrossReads(t *testing.T) {
	t.Parallel()

	dispatcher := NewDispatcher(DefaultPrefix, nil)
	if events := dispatcher.Feed([]byte{DefaultPrefix}); len(events) != 0 {
		t.Fatalf("prefix alone produced %v", flatten(events))
	}
	events := dispatcher.Feed([]byte("p"))
	if len(events) != 1 || events[0].Command != PowerOff {
		t.Fatalf("events = %v, want power-off", flatten(events))
	}

	dispatcher.Feed([]byte{DefaultPrefix})
	events = dispatcher.Feed([]byte("x"))
	if len(events) != 1 || !bytes.Equal(events[0].Data, []byte{DefaultPrefix, 'x'}) {
		t.Fatalf("events = %v, want prefix and x forwarded", flatten(events))
	}
}

func TestDispatcherCustomPrefixAndKeybinds(t *testing.T) {
	t.Parallel()

	const ctrlBracket = 0x1d
	dispatcher := NewDispatcher(ctrlBracket, Keybinds{'x': Quit})
	got := flatten(dispatcher.Feed([]byte("\x01q\x1dp\x1dx")))
	want := []string{"data:\x01q\x1dp", "cmd:quit"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDispatcherDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	input := []byte("hello")
	events := NewDispatcher(DefaultPrefix, nil).Feed(input)
	copy(input, "XXXXX")
	if string(events[0].Data) != "hello" {
		t.Errorf("event data changed with input buffer: %q", events[0].Data)
	}
}

func TestCommandFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		command Command
		want    protocol.MessageType
	}{
		{RequestBreak, protocol.TypeRequestBreak},
		{PowerOff, protocol.TypePowerOff},
		{PowerOn, protocol.TypePowerOn},
		{VbusOff, protocol.TypeVbusOff},
		{VbusOn, protocol.TypeVbusOn},
		{RequestStatus, protocol.TypeRequestStatus},
		{SendPrefix, protocol.TypeConsoleData},
	}
	for _, test := range tests {
		frame, ok := test.command.Frame(DefaultPrefix)
		if !ok || frame.Type != test.want {
			t.Errorf("%s.Frame() = %s, %v; want %s", test.command, frame.Type, ok, test.want)
		}
	}
	if frame, _ := SendPrefix.Frame(0x1d); !bytes.Equal(frame.Payload, []byte{0x1d}) {
		t.Errorf("SendPrefix payload = %x, want 1d", frame.Payload)
	}
	if _, ok := Quit.Frame(DefaultPrefix); ok {
		t.Error("Quit translated to a frame")
	}
}

func TestParsePrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    byte
		wantErr bool
	}{
		{"^A", 0x01, false},
		{"^a", 0x01, false},
		{"^]", 0x1d, false},
		{"C-b", 0x02, false},
		{"ctrl-t", 0x14, false},
		{"Ctrl+A", 0x01, false},
		{"0x01", 0x01, false},
		{"0x1D", 0x1d, false},
		{"", 0, true},
		{"a", 0, true},
		{"^@", 0, true},
		{"^1", 0, true},
		{"0x41", 0, true},
		{"0xzz", 0, true},
	}
	for _, test := range tests {
		got, err := ParsePrefix(test.input)
		if test.wantErr {
			if err == nil {
				t.Errorf("ParsePrefix(%q) = %#x, want error", test.input, got)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("ParsePrefix(%q) = %#x, %v; want %#x", test.input, got, err, test.want)
		}
	}

	if FormatPrefix(0x01) != "^A" || FormatPrefix(0x1d) != "^]" {
		t.Errorf("FormatPrefix: %q %q", FormatPrefix(0x01), FormatPrefix(0x1d))
	}
}

func TestKeybindsHelp(t *testing.T) {
	t.Parallel()
	help := DefaultKeybinds().Help(DefaultPrefix)
	for _, line := range []string{"^A q  quit", "^A p  power-off", "^A V  vbus-on"} {
		if !strings.Contains(help, line) {
			t.Errorf("help missing %q:\n%s", line, help)
		}
	}
}
