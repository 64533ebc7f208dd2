// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sk8brd/sk8brd/protocol"
)

// DefaultPrefix is CTRL-A.
const DefaultPrefix byte = 0x01

// Command is an out-of-band action selected with the escape prefix.
type Command uint8

const (
	// SendPrefix forwards one literal prefix byte to the console.
	SendPrefix Command = iota + 1
	RequestBreak
	PowerOff
	PowerOn
	VbusOff
	VbusOn
	RequestStatus
	Quit
)

var commandNames = map[Command]string{
	SendPrefix:    "send-prefix",
	RequestBreak:  "break",
	PowerOff:      "power-off",
	PowerOn:       "power-on",
	VbusOff:       "vbus-off",
	VbusOn:        "vbus-on",
	RequestStatus: "status",
	Quit:          "quit",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// Frame translates c into the frame sent to the daemon. Quit has no
// frame.
func (c Command) Frame(prefix byte) (protocol.Frame, bool) {
	switch c {
	case SendPrefix:
		return protocol.ConsoleData([]byte{prefix}), true
	case RequestBreak:
		return protocol.Control(protocol.TypeRequestBreak), true
	case PowerOff:
		return protocol.Control(protocol.TypePowerOff), true
	case PowerOn:
		return protocol.Control(protocol.TypePowerOn), true
	case VbusOff:
		return protocol.Control(protocol.TypeVbusOff), true
	case VbusOn:
		return protocol.Control(protocol.TypeVbusOn), true
	case RequestStatus:
		return protocol.Control(protocol.TypeRequestStatus), true
	}
	return protocol.Frame{}, false
}

// Keybinds maps the byte typed after the prefix to a command.
type Keybinds map[byte]Command

// DefaultKeybinds returns the standard table.
func DefaultKeybinds() Keybinds {
	return Keybinds{
		'a': SendPrefix,
		'B': RequestBreak,
		'p': PowerOff,
		'P': PowerOn,
		'q': Quit,
		's': RequestStatus,
		'v': VbusOff,
		'V': VbusOn,
	}
}

// Help lists the bindings one per line, e.g. "^A p  power-off".
func (k Keybinds) Help(prefix byte) string {
	keys := make([]byte, 0, len(k))
	for key := range k {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var builder strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&builder, "%s %c  %s\n", FormatPrefix(prefix), key, k[key])
	}
	return builder.String()
}

// State is the dispatcher's position in the escape grammar.
type State uint8

const (
	Passthrough State = iota
	AwaitingCommandChar
)

func (s State) String() string {
	if s == AwaitingCommandChar {
		return "awaiting-command-char"
	}
	return "passthrough"
}

// Event is one dispatcher output: either console bytes to forward or a
// command. Exactly one of Data and Command is set.
type Event struct {
	Data    []byte
	Command Command
}

// Dispatcher splits local keystrokes into console data and commands. It
// is not safe for concurrent use; the multiplexer's input goroutine owns
// it.
type Dispatcher struct {
	prefix   byte
	keybinds Keybinds
	state    State
}

// NewDispatcher creates a dispatcher in Passthrough. A nil keybinds uses
// DefaultKeybinds.
func NewDispatcher(prefix byte, keybinds Keybinds) *Dispatcher {
	if keybinds == nil {
		keybinds = DefaultKeybinds()
	}
	return &Dispatcher{prefix: prefix, keybinds: keybinds}
}

// Prefix returns the escape prefix byte.
func (d *Dispatcher) Prefix() byte { return d.prefix }

// State returns the current grammar state. A prefix at the end of one
// Feed call leaves the dispatcher in AwaitingCommandChar for the next.
func (d *Dispatcher) State() State { return d.state }

// Feed consumes input and returns the resulting events in input order.
// Consecutive console bytes are coalesced into one Data event; a
// command always ends the current run.
func (d *Dispatcher) Feed(input []byte) []Event {
	var events []Event
	var pending []byte
	flush := func() {
		if len(pending) > 0 {
			events = append(events, Event{Data: pending})
			pending = nil
		}
	}

	for _, b := range input {
		switch d.state {
		case Passthrough:
			if b == d.prefix {
				d.state = AwaitingCommandChar
				continue
			}
			pending = append(pending, b)

		case AwaitingCommandChar:
			d.state = Passthrough
			command, ok := d.keybinds[b]
			if !ok {
				pending = append(pending, d.prefix, b)
				continue
			}
			flush()
			events = append(events, Event{Command: command})
		}
	}
	flush()
	return events
}

// ParsePrefix parses an escape prefix written as caret notation ("^A",
// "^]"), emacs notation ("C-a"), "ctrl-a", or a hex byte ("0x01").
func ParsePrefix(text string) (byte, error) {
	original := text
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(text, "^") && len(text) == 2:
		text = text[1:]
	case strings.HasPrefix(lower, "c-") && len(text) == 3:
		text = text[2:]
	case strings.HasPrefix(lower, "ctrl-") && len(text) == 6:
		text = text[5:]
	case strings.HasPrefix(lower, "ctrl+") && len(text) == 6:
		text = text[5:]
	case strings.HasPrefix(lower, "0x") && len(text) == 4:
		value, err := strconv.ParseUint(lower[2:], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid escape prefix %q: %w", original, err)
		}
		if value == 0 || value >= 0x20 {
			return 0, fmt.Errorf("invalid escape prefix %q: must be a control character", original)
		}
		return byte(value), nil
	default:
		return 0, fmt.Errorf("invalid escape prefix %q: want ^X, C-x, ctrl-x or 0xNN", original)
	}

	character := strings.ToUpper(text)[0]
	if character < '@'+1 || character > '_' {
		return 0, fmt.Errorf("invalid escape prefix %q: no control character for %q", original, text)
	}
	return character - '@', nil
}

// FormatPrefix renders a control byte in caret notation.
func FormatPrefix(prefix byte) string {
	if prefix < 0x20 {
		return "^" + string(rune(prefix+'@'))
	}
	return string(rune(prefix))
}
