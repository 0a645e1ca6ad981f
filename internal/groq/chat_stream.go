// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package groq provides the HTTP client for the Groq OpenAI-compatible API.
package groq

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/jeranaias/kaiwa/internal/stream"
)

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream sends a streaming completion request and invokes the callback
// for every text fragment as it arrives. Blocks until the upstream stream
// ends or the context is cancelled.
//
// Fragments are delivered in order. An error is returned only when the
// request cannot be established or the transport fails mid-stream;
// fragments delivered before the failure have already reached the callback.
func (c *Client) ChatStream(ctx context.Context, messages []Message, callback FragmentCallback) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	// Streaming responses outlive the regular request timeout, so use a
	// client without one. Cancellation flows through the context.
	streamClient := &http.Client{}

	resp, err := c.post(ctx, streamClient, chatRequest{
		Model:     c.config.Model,
		Messages:  messages,
		MaxTokens: c.config.MaxTokens,
		Stream:    true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	return c.readStream(ctx, resp.Body, callback)
}

// readStream consumes the SSE body, forwarding delta content fragments.
func (c *Client) readStream(ctx context.Context, body io.Reader, callback FragmentCallback) error {
	scanner := stream.NewScanner(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := scanner.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
		}

		if payload == "[DONE]" {
			return nil
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Skip malformed chunks
			log.Printf("GROQ_CHUNK_SKIP | reason=malformed_json payload_len=%d", len(payload))
			continue
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			callback(content)
		}
		if chunk.Choices[0].FinishReason != nil {
			// Groq still sends [DONE] afterwards; keep reading until then
			// so the connection drains cleanly.
			continue
		}
	}
}
