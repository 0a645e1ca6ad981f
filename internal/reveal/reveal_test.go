// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reveal paints streamed text onto a display surface one unit at
// a time.
package reveal

import (
	"context"
	"testing"
)

// recordingSurface captures every surface call in order.
type recordingSurface struct {
	ops     []string // "text:<s>", "break", "scroll"
	scrolls int
}

func (r *recordingSurface) AppendText(text string) { r.ops = append(r.ops, "text:"+text) }
func (r *recordingSurface) AppendBreak()           { r.ops = append(r.ops, "break") }
func (r *recordingSurface) ScrollToLatest() {
	r.ops = append(r.ops, "scroll")
	r.scrolls++
}

// rendered reconstructs the visible transcript, "<br>" marking breaks.
func (r *recordingSurface) rendered() string {
	out := ""
	for _, op := range r.ops {
		switch {
		case op == "break":
			out += "<br>"
		case len(op) > 5 && op[:5] == "text:":
			out += op[5:]
		}
	}
	return out
}

func reveal(t *testing.T, fragments ...string) *recordingSurface {
	t.Helper()
	surface := &recordingSurface{}
	sched := NewScheduler(surface, 0)
	for _, f := range fragments {
		if err := sched.Reveal(context.Background(), f); err != nil {
			t.Fatalf("Reveal(%q) failed: %v", f, err)
		}
	}
	return surface
}

// =============================================================================
// ORDER AND STRUCTURE TESTS
// =============================================================================

func TestReveal_OrderAcrossFragments(t *testing.T) {
	// Two fragments where the second contains a line break: output order
	// must be A, B, break, C.
	surface := reveal(t, "A", "B\nC")

	if got := surface.rendered(); got != "AB<br>C" {
		t.Errorf("rendered = %q, want 'AB<br>C'", got)
	}
}

func TestReveal_LineBreakIsStructural(t *testing.T) {
	surface := reveal(t, "x\ny")

	for _, op := range surface.ops {
		if op == "text:\n" {
			t.Error("newline revealed as literal text, want AppendBreak")
		}
	}

	breaks := 0
	for _, op := range surface.ops {
		if op == "break" {
			breaks++
		}
	}
	if breaks != 1 {
		t.Errorf("breaks = %d, want 1", breaks)
	}
}

func TestReveal_OneRunePerUnit(t *testing.T) {
	surface := reveal(t, "今日は")

	var texts []string
	for _, op := range surface.ops {
		if len(op) > 5 && op[:5] == "text:" {
			texts = append(texts, op[5:])
		}
	}
	want := []string{"今", "日", "は"}
	if len(texts) != len(want) {
		t.Fatalf("units = %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("unit %d = %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestReveal_EscapeSequenceIsAtomic(t *testing.T) {
	surface := reveal(t, "\x1b[1mAB\x1b[0m")

	var texts []string
	for _, op := range surface.ops {
		if len(op) > 5 && op[:5] == "text:" {
			texts = append(texts, op[5:])
		}
	}
	want := []string{"\x1b[1m", "A", "B", "\x1b[0m"}
	if len(texts) != len(want) {
		t.Fatalf("units = %q, want %q", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("unit %d = %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestReveal_ScrollPerUnit(t *testing.T) {
	surface := reveal(t, "ab\nc")

	// 3 text units + 1 break = 4 reveals, each followed by a scroll.
	if surface.scrolls != 4 {
		t.Errorf("scrolls = %d, want 4", surface.scrolls)
	}
}

func TestReveal_EmptyFragment(t *testing.T) {
	surface := reveal(t, "")

	if len(surface.ops) != 0 {
		t.Errorf("ops = %v, want none for empty fragment", surface.ops)
	}
}

func TestReveal_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	surface := &recordingSurface{}
	sched := NewScheduler(surface, DefaultDelay)
	err := sched.Reveal(ctx, "long fragment that would take a while")
	if err != context.Canceled {
		t.Errorf("Reveal = %v, want context.Canceled", err)
	}
}

// =============================================================================
// UNIT SPLITTING TESTS
// =============================================================================

func TestSplitUnits_UnterminatedEscape(t *testing.T) {
	units := splitUnits("\x1b[1")
	if len(units) != 1 {
		t.Fatalf("units = %+v, want single unit for unterminated escape", units)
	}
}

func TestSplitUnits_BareEscape(t *testing.T) {
	units := splitUnits("\x1bMx")
	if len(units) != 2 {
		t.Fatalf("units = %+v, want ESC-pair plus one rune", units)
	}
	if units[0].text != "\x1bM" || units[1].text != "x" {
		t.Errorf("units = %+v", units)
	}
}
