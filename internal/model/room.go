// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat rooms and messages.
package model

import (
	"strconv"
	"time"
)

// DefaultTitle is the title a room carries until one is generated
// from its first exchange.
const DefaultTitle = "新しいチャット"

// =============================================================================
// ROOM TYPE
// =============================================================================

// Room holds one chat transcript with its metadata.
type Room struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewRoom creates a new empty room with a generated ID and the default title.
func NewRoom() *Room {
	now := time.Now()
	return &Room{
		ID:        GenerateRoomID(now),
		Title:     DefaultTitle,
		Messages:  make([]*Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GenerateRoomID derives a room ID from a creation timestamp.
// Callers that need uniqueness across rapid creations bump the
// timestamp until the ID is free (see store.CreateRoom).
func GenerateRoomID(t time.Time) string {
	return "room_" + strconv.FormatInt(t.UnixMilli(), 10)
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message to the room transcript.
func (r *Room) AddMessage(msg *Message) {
	r.Messages = append(r.Messages, msg)
	r.UpdatedAt = time.Now()
}

// AddUserMessage creates and appends a user message.
func (r *Room) AddUserMessage(text string) *Message {
	msg := NewUserMessage(text)
	r.AddMessage(msg)
	return msg
}

// AddBotMessage creates and appends a bot message.
func (r *Room) AddBotMessage(text string) *Message {
	msg := NewBotMessage(text)
	r.AddMessage(msg)
	return msg
}

// LastMessage returns the most recent message, or nil if empty.
func (r *Room) LastMessage() *Message {
	if len(r.Messages) == 0 {
		return nil
	}
	return r.Messages[len(r.Messages)-1]
}

// FirstUserMessage returns the earliest user message, or nil.
// Title generation keys off this message.
func (r *Room) FirstUserMessage() *Message {
	for _, msg := range r.Messages {
		if msg.Sender == SenderUser {
			return msg
		}
	}
	return nil
}

// MessageCount returns the number of messages in the room.
func (r *Room) MessageCount() int {
	return len(r.Messages)
}

// IsEmpty returns true if the room has no messages.
func (r *Room) IsEmpty() bool {
	return len(r.Messages) == 0
}

// HasGeneratedTitle reports whether the room title has been set to
// something other than the default.
func (r *Room) HasGeneratedTitle() bool {
	return r.Title != "" && r.Title != DefaultTitle
}

// SetTitle sets the room title.
func (r *Room) SetTitle(title string) {
	r.Title = title
	r.UpdatedAt = time.Now()
}

// =============================================================================
// WIRE CONVERSION
// =============================================================================

// APIMessage is the role/content shape the relay accepts.
type APIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToAPIMessages converts the full transcript to the wire format,
// in order. User messages map to role "user", bot messages to
// role "assistant".
func (r *Room) ToAPIMessages() []APIMessage {
	messages := make([]APIMessage, 0, len(r.Messages))
	for _, msg := range r.Messages {
		messages = append(messages, APIMessage{
			Role:    msg.Sender.APIRole(),
			Content: msg.Text,
		})
	}
	return messages
}

// Clone creates a deep copy of the room.
func (r *Room) Clone() *Room {
	clone := &Room{
		ID:        r.ID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Messages:  make([]*Message, len(r.Messages)),
	}
	for i, msg := range r.Messages {
		msgCopy := *msg
		clone.Messages[i] = &msgCopy
	}
	return clone
}
