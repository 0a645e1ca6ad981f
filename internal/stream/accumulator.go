// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream implements the SSE wire format used between the relay
// and its clients.
package stream

import "strings"

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// Accumulator collects text fragments as they arrive so the completed
// response can be committed to the transcript in one piece.
type Accumulator struct {
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	content    strings.Builder
	fragments  int
	errorCount int
	done       bool
}

// NewAccumulator creates a new accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add processes one frame.
func (a *Accumulator) Add(frame Frame) {
	switch frame.Kind {
	case FrameText:
		a.content.WriteString(frame.Text)
		a.fragments++
	case FrameError:
		a.errorCount++
	case FrameTerminal:
		a.done = true
	}
}

// Content returns the accumulated text.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// FragmentCount returns the number of text fragments received.
func (a *Accumulator) FragmentCount() int {
	return a.fragments
}

// ErrorCount returns the number of error frames seen mid-stream.
func (a *Accumulator) ErrorCount() int {
	return a.errorCount
}

// IsDone returns whether the terminal frame has been seen.
func (a *Accumulator) IsDone() bool {
	return a.done
}
