// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui renders the kaiwa terminal client: prompt and transcript
// styling, and the display surface streamed replies are revealed onto.
// All colors use Lip Gloss AdaptiveColor for automatic light/dark
// detection.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// COLORS
// =============================================================================

// Cyan - brand color, prompt, user highlights
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Purple - assistant replies
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Rose - errors and failure notices
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Emerald - success confirmations
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// TextMuted - hints, room ids, timestamps
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// =============================================================================
// STYLES
// =============================================================================

// Styles holds the styled components for the terminal client.
type Styles struct {
	ColorProfile termenv.Profile

	Prompt    lipgloss.Style
	UserLabel lipgloss.Style
	BotLabel  lipgloss.Style
	BotText   lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Muted     lipgloss.Style
	RoomTitle lipgloss.Style
}

// NewStyles builds the style set for the detected terminal profile.
func NewStyles() *Styles {
	return &Styles{
		ColorProfile: termenv.ColorProfile(),

		Prompt:    lipgloss.NewStyle().Foreground(Cyan).Bold(true),
		UserLabel: lipgloss.NewStyle().Foreground(Cyan).Bold(true),
		BotLabel:  lipgloss.NewStyle().Foreground(Purple).Bold(true),
		BotText:   lipgloss.NewStyle().Foreground(Purple),
		Error:     lipgloss.NewStyle().Foreground(Rose),
		Success:   lipgloss.NewStyle().Foreground(Emerald),
		Muted:     lipgloss.NewStyle().Foreground(TextMuted),
		RoomTitle: lipgloss.NewStyle().Foreground(Emerald).Bold(true),
	}
}
