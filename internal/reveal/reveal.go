// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reveal paints streamed text onto a display surface one unit at
// a time, preserving arrival order and pacing output like a typewriter.
package reveal

import (
	"context"
	"time"
)

// =============================================================================
// SURFACE
// =============================================================================

// Surface is the display target for revealed text. Implementations render
// to a terminal transcript; tests substitute an in-memory recorder.
type Surface interface {
	// AppendText appends text to the current output position.
	AppendText(text string)

	// AppendBreak starts a new line. Line breaks in streamed text are
	// structural, never literal characters.
	AppendBreak()

	// ScrollToLatest keeps the newest output visible.
	ScrollToLatest()
}

// =============================================================================
// SCHEDULER
// =============================================================================

// DefaultDelay is the pause between revealed units.
const DefaultDelay = 15 * time.Millisecond

// Scheduler reveals text fragments unit by unit, strictly left to right.
// One visible character is one unit, except that a terminal escape
// sequence travels atomically with no pause inside it, so styling can
// never be emitted half-applied.
//
// A Scheduler is not safe for concurrent use; the session controller
// serializes reveals per stream.
type Scheduler struct {
	// Delay is the pause after each revealed unit. Zero reveals
	// instantly (used by tests and non-interactive output).
	Delay time.Duration

	surface Surface
}

// NewScheduler creates a scheduler targeting the given surface.
func NewScheduler(surface Surface, delay time.Duration) *Scheduler {
	return &Scheduler{Delay: delay, surface: surface}
}

// Reveal paints one fragment onto the surface. Blocks until every unit
// of the fragment has been revealed, so fragments from a stream appear
// in exactly the order they arrived. Returns early only when the
// context is cancelled.
func (s *Scheduler) Reveal(ctx context.Context, fragment string) error {
	for _, u := range splitUnits(fragment) {
		if u.lineBreak {
			s.surface.AppendBreak()
		} else {
			s.surface.AppendText(u.text)
		}
		s.surface.ScrollToLatest()

		if s.Delay > 0 {
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// =============================================================================
// UNIT SPLITTING
// =============================================================================

type unit struct {
	text      string
	lineBreak bool
}

// splitUnits breaks a fragment into reveal units: single runes, with two
// exceptions. A "\n" becomes a structural line break, and an ANSI escape
// sequence stays whole so a style change is one unit.
func splitUnits(fragment string) []unit {
	runes := []rune(fragment)
	units := make([]unit, 0, len(runes))

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case r == '\n':
			units = append(units, unit{lineBreak: true})

		case r == '\x1b':
			end := escapeEnd(runes, i)
			units = append(units, unit{text: string(runes[i:end])})
			i = end - 1

		default:
			units = append(units, unit{text: string(r)})
		}
	}

	return units
}

// escapeEnd returns the index just past the escape sequence starting at
// start. Handles CSI sequences (ESC [ ... final byte in @-~); any other
// escape is treated as two characters (ESC plus one).
func escapeEnd(runes []rune, start int) int {
	if start+1 >= len(runes) {
		return start + 1
	}
	if runes[start+1] != '[' {
		return start + 2
	}
	for i := start + 2; i < len(runes); i++ {
		if runes[i] >= '@' && runes[i] <= '~' {
			return i + 1
		}
	}
	// Unterminated sequence: take the rest.
	return len(runes)
}
