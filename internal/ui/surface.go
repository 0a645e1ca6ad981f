// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// =============================================================================
// TERMINAL SURFACE
// =============================================================================

// fallbackWidth is used when the terminal size cannot be determined.
const fallbackWidth = 80

// TerminalSurface writes revealed text to a terminal, soft-wrapping at
// the terminal width. It satisfies reveal.Surface.
type TerminalSurface struct {
	out    io.Writer
	column int

	// fixedWidth overrides terminal detection; zero queries the tty.
	fixedWidth int
}

// NewTerminalSurface creates a surface writing to out. width of zero
// queries the terminal on each wrap decision so resizes take effect
// mid-stream.
func NewTerminalSurface(out io.Writer, width int) *TerminalSurface {
	return &TerminalSurface{out: out, fixedWidth: width}
}

// AppendText writes one reveal unit, wrapping when it would pass the
// right edge. Escape sequences occupy no columns.
func (s *TerminalSurface) AppendText(text string) {
	w := displayWidth(text)
	if w > 0 && s.column+w > s.width() {
		fmt.Fprint(s.out, "\n")
		s.column = 0
	}
	fmt.Fprint(s.out, text)
	s.column += w
}

// AppendBreak starts a new line.
func (s *TerminalSurface) AppendBreak() {
	fmt.Fprint(s.out, "\n")
	s.column = 0
}

// ScrollToLatest is a no-op: the terminal scrolls as lines are printed.
func (s *TerminalSurface) ScrollToLatest() {}

// Reset clears wrap tracking, for use between messages.
func (s *TerminalSurface) Reset() {
	s.column = 0
}

func (s *TerminalSurface) width() int {
	if s.fixedWidth > 0 {
		return s.fixedWidth
	}
	if f, ok := s.out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return fallbackWidth
}

// displayWidth returns the number of columns text occupies. Styling
// escape sequences are invisible.
func displayWidth(text string) int {
	if strings.HasPrefix(text, "\x1b") {
		return 0
	}
	return runewidth.StringWidth(text)
}
