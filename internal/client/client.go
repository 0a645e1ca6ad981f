// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client provides the HTTP client for the relay server API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/jeranaias/kaiwa/internal/model"
	"github.com/jeranaias/kaiwa/internal/stream"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// RelayError represents an error from the relay client.
type RelayError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes relay client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeRejected
)

// Sentinel errors for easy checking.
var (
	ErrUnreachable = &RelayError{Type: ErrTypeConnection, Message: "relay server is unreachable"}
	ErrTimeout     = &RelayError{Type: ErrTypeTimeout, Message: "request timed out"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the relay client.
type Config struct {
	// BaseURL is the relay server root (default: http://127.0.0.1:3000)
	BaseURL string

	// Timeout for non-streaming requests (default: 15s)
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://127.0.0.1:3000",
		Timeout: 15 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the relay server. It is thread-safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// New creates a relay client with the given configuration.
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:3000"
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// errorEnvelope is the relay's JSON error body.
type errorEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// =============================================================================
// CHAT STREAMING
// =============================================================================

// chatRequest is the POST /api/chat body.
type chatRequest struct {
	Messages []model.APIMessage `json:"messages"`
}

// StreamChat sends the transcript to the relay and decodes the SSE
// response, delivering frames to the callback in order. Blocks until the
// terminal frame.
//
// An error is returned only when the stream could not be established
// (connection refused, or the relay rejected the request before
// streaming). Once streaming has begun, failures surface as in-stream
// frames and StreamChat returns nil.
func (c *Client) StreamChat(ctx context.Context, messages []model.APIMessage, callback stream.FrameCallback) error {
	payload, err := json.Marshal(chatRequest{Messages: messages})
	if err != nil {
		return &RelayError{Type: ErrTypeUnknown, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return &RelayError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	// Streaming responses outlive the regular request timeout, so use a
	// client without one. Cancellation flows through the context.
	streamClient := &http.Client{}

	resp, err := streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return &RelayError{Type: ErrTypeConnection, Message: "relay server is unreachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.rejectionError(resp)
	}

	// Frames from here on, whatever happens to the transport. The decoder
	// synthesizes the error and terminal frames on mid-stream failure.
	decoder := stream.NewDecoder(resp.Body)
	if err := decoder.Process(ctx, callback); err != nil {
		log.Printf("CHAT_STREAM_ENDED | error=%v", err)
	}
	return nil
}

// rejectionError converts a non-200 relay response into a typed error.
func (c *Client) rejectionError(resp *http.Response) error {
	var envelope errorEnvelope
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return &RelayError{Type: ErrTypeRejected, Message: envelope.Error}
	}
	return &RelayError{Type: ErrTypeRejected, Message: "relay rejected the request: " + resp.Status}
}

// =============================================================================
// TITLE SUMMARIZATION
// =============================================================================

// titleRequest is the POST /api/summarize-title body.
type titleRequest struct {
	Message   string `json:"message"`
	MaxLength int    `json:"maxLength,omitempty"`
}

// titleResponse is the success body.
type titleResponse struct {
	OK    bool   `json:"ok"`
	Title string `json:"title"`
	Error string `json:"error"`
}

// SummarizeTitle asks the relay for a short title for the given message.
// Any failure returns an error; callers fall back to local generation.
func (c *Client) SummarizeTitle(ctx context.Context, message string, maxLength int) (string, error) {
	payload, err := json.Marshal(titleRequest{Message: message, MaxLength: maxLength})
	if err != nil {
		return "", &RelayError{Type: ErrTypeUnknown, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/summarize-title", bytes.NewReader(payload))
	if err != nil {
		return "", &RelayError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", &RelayError{Type: ErrTypeConnection, Message: "relay server is unreachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.rejectionError(resp)
	}

	var result titleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &RelayError{Type: ErrTypeUnknown, Message: "failed to decode response", Cause: err}
	}
	if !result.OK || result.Title == "" {
		return "", &RelayError{Type: ErrTypeRejected, Message: "relay returned no title"}
	}

	return result.Title, nil
}
