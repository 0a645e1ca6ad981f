// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay provides the HTTP relay server between chat clients and
// the upstream completion provider.
package relay

import (
	"context"

	"github.com/jeranaias/kaiwa/internal/groq"
)

// ChatMessage represents a message in the chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider produces completions for the relay. It isolates the upstream
// API shape from the relay protocol: handlers never see provider request
// or response types, only text fragments and full strings.
type Provider interface {
	// StreamCompletion generates a completion and delivers text fragments
	// in order. Blocks until the completion finishes or fails.
	StreamCompletion(ctx context.Context, messages []ChatMessage, fn func(fragment string)) error

	// Complete generates a completion and returns the full text.
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// =============================================================================
// GROQ PROVIDER
// =============================================================================

// GroqProvider adapts the Groq client to the Provider interface.
type GroqProvider struct {
	client *groq.Client
}

// NewGroqProvider creates a provider backed by the given Groq client.
func NewGroqProvider(client *groq.Client) *GroqProvider {
	return &GroqProvider{client: client}
}

// StreamCompletion implements Provider.
func (p *GroqProvider) StreamCompletion(ctx context.Context, messages []ChatMessage, fn func(fragment string)) error {
	return p.client.ChatStream(ctx, toGroqMessages(messages), func(fragment string) {
		fn(fragment)
	})
}

// Complete implements Provider.
func (p *GroqProvider) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	return p.client.Chat(ctx, toGroqMessages(messages))
}

func toGroqMessages(messages []ChatMessage) []groq.Message {
	out := make([]groq.Message, len(messages))
	for i, msg := range messages {
		out[i] = groq.Message{Role: msg.Role, Content: msg.Content}
	}
	return out
}
