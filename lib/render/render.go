// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"

	"github.com/sk8brd/sk8brd/protocol"
	"github.com/sk8brd/sk8brd/upload"
)

// Printer writes styled status lines. It is safe for concurrent use.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	status  lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	faint   lipgloss.Style

	raw bool

	// progress is the percentage on the current in-place progress line,
	// or -1 when no progress line is open.
	progress int
}

// New returns a Printer for out with the color profile detected from out
// and the environment.
func New(out io.Writer) *Printer {
	return newPrinter(out, lipgloss.NewRenderer(out))
}

// NewWithProfile returns a Printer with a fixed color profile.
// termenv.Ascii disables styling.
func NewWithProfile(out io.Writer, profile termenv.Profile) *Printer {
	renderer := lipgloss.NewRenderer(out, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return newPrinter(out, renderer)
}

func newPrinter(out io.Writer, renderer *lipgloss.Renderer) *Printer {
	return &Printer{
		out:      out,
		status:   renderer.NewStyle().Foreground(lipgloss.Color("4")),
		success:  renderer.NewStyle().Foreground(lipgloss.Color("2")),
		failure:  renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		faint:    renderer.NewStyle().Faint(true),
		progress: -1,
	}
}

// SetRaw switches line endings for a terminal in raw mode.
func (p *Printer) SetRaw(raw bool) {
	p.mu.Lock()
	p.raw = raw
	p.mu.Unlock()
}

// Status prints a notice.
func (p *Printer) Status(format string, args ...any) {
	p.line(p.status, fmt.Sprintf(format, args...))
}

// Success prints a success notice.
func (p *Printer) Success(format string, args ...any) {
	p.line(p.success, fmt.Sprintf(format, args...))
}

// Error prints an error notice.
func (p *Printer) Error(format string, args ...any) {
	p.line(p.failure, fmt.Sprintf(format, args...))
}

// Plain prints an unstyled line.
func (p *Printer) Plain(format string, args ...any) {
	p.line(lipgloss.NewStyle(), fmt.Sprintf(format, args...))
}

// Progress rewrites the in-place upload progress line. Repeated reports
// at the same percentage are not redrawn.
func (p *Printer) Progress(transfer upload.Transfer) {
	percent := transfer.Percent()
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent == p.progress {
		return
	}
	p.progress = percent
	fmt.Fprint(p.out, "\r"+p.status.Render(ProgressLine(transfer))+ansi.EraseLineRight)
}

// Frame renders a daemon status frame. Frames of other types are ignored.
func (p *Printer) Frame(frame protocol.Frame) {
	switch frame.Type {
	case protocol.TypeStatusReport:
		report, err := protocol.ParseStatusReport(frame.Payload)
		if err != nil {
			p.line(p.failure, "unreadable status report")
			return
		}
		p.line(p.status, FormatStatusReport(report))
	case protocol.TypeBoardInfo:
		for _, line := range strings.Split(strings.TrimRight(string(frame.Payload), "\n"), "\n") {
			p.line(p.faint, Sanitize(line))
		}
	case protocol.TypeFastbootPresent:
		if protocol.ParseFastbootPresent(frame.Payload) {
			p.line(p.status, "fastboot device present")
		} else {
			p.line(p.status, "fastboot device gone")
		}
	}
}

func (p *Printer) line(style lipgloss.Style, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	newline := "\n"
	if p.raw {
		newline = "\r\n"
	}
	if p.progress >= 0 {
		// Close the progress line before printing below it.
		fmt.Fprint(p.out, newline)
		p.progress = -1
	}
	fmt.Fprint(p.out, style.Render(text)+newline)
}

// ProgressLine formats upload progress, e.g.
// "Sending image: 42% (3.1 MiB of 7.4 MiB)".
func ProgressLine(transfer upload.Transfer) string {
	return fmt.Sprintf("Sending image: %d%% (%s of %s)", transfer.Percent(),
		humanize.IBytes(transfer.Acknowledged), humanize.IBytes(transfer.Total))
}

// FormatStatusReport renders a StatusReport on one line. Known fields
// come first in a fixed order, then the remaining fields sorted by key.
func FormatStatusReport(report protocol.StatusReport) string {
	var parts []string
	if report.Board != "" {
		parts = append(parts, "board "+Sanitize(report.Board))
	}
	if report.State != "" {
		parts = append(parts, "state "+Sanitize(report.State))
	}
	if report.Power != nil {
		parts = append(parts, "power "+onOff(*report.Power))
	}
	if report.Vbus != nil {
		parts = append(parts, "vbus "+onOff(*report.Vbus))
	}
	if report.QueuePosition != nil {
		parts = append(parts, fmt.Sprintf("queue position %d", *report.QueuePosition))
	}

	known := map[string]bool{"board": true, "state": true, "power": true, "vbus": true, "queue_position": true}
	var extra []string
	for key := range report.Fields {
		if !known[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		parts = append(parts, Sanitize(key)+"="+Sanitize(string(report.Fields[key])))
	}

	if len(parts) == 0 {
		return "status: (empty)"
	}
	return "status: " + strings.Join(parts, ", ")
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// Sanitize removes ANSI escape sequences and other control characters
// from daemon-provided text. Tabs are kept.
func Sanitize(text string) string {
	stripped := ansi.Strip(text)
	return strings.Map(func(r rune) rune {
		if r == '\t' || (r >= 0x20 && r != 0x7f && (r < 0x80 || r > 0x9f)) {
			return r
		}
		return -1
	}, stripped)
}
