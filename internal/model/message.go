// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat rooms and messages.
package model

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// String returns the string representation of the sender.
func (s Sender) String() string {
	return string(s)
}

// IsValid reports whether the sender is one of the known values.
func (s Sender) IsValid() bool {
	return s == SenderUser || s == SenderBot
}

// APIRole maps a sender to the role used on the wire.
// The relay speaks the OpenAI-style role vocabulary.
func (s Sender) APIRole() string {
	if s == SenderBot {
		return "assistant"
	}
	return "user"
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single entry in a room transcript.
type Message struct {
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}

// NewUserMessage creates a new user message.
func NewUserMessage(text string) *Message {
	return &Message{Text: text, Sender: SenderUser}
}

// NewBotMessage creates a new bot message.
func NewBotMessage(text string) *Message {
	return &Message{Text: text, Sender: SenderBot}
}

// IsEmpty returns true if the message has no text.
func (m *Message) IsEmpty() bool {
	return len(m.Text) == 0
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Text)
	if len(runes) <= maxLen {
		return m.Text
	}
	return string(runes[:maxLen-3]) + "..."
}
