// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package groq provides the HTTP client for the Groq OpenAI-compatible API.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Groq client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotConfigured
	ErrTypeTimeout
	ErrTypeAuth
	ErrTypeRateLimited
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotConfigured = &ClientError{Type: ErrTypeNotConfigured, Message: "Groq API key is not configured"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrAuth          = &ClientError{Type: ErrTypeAuth, Message: "Groq rejected the API key"}
	ErrRateLimited   = &ClientError{Type: ErrTypeRateLimited, Message: "Groq rate limit exceeded"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Groq client.
type ClientConfig struct {
	// BaseURL is the OpenAI-compatible API root (default: https://api.groq.com/openai/v1)
	BaseURL string

	// APIKey authenticates requests. Required.
	APIKey string

	// Model to request completions from (default: "llama-3.3-70b-versatile")
	Model string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// MaxTokens caps the completion length (default: 1024)
	MaxTokens int
}

// DefaultConfig returns the default client configuration.
// The API key must still be supplied by the caller.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:   "https://api.groq.com/openai/v1",
		Model:     "llama-3.3-70b-versatile",
		Timeout:   30 * time.Second,
		MaxTokens: 1024,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Message is one entry of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FragmentCallback receives completion text fragments in arrival order.
type FragmentCallback func(fragment string)

// Client handles communication with the Groq API.
//
// The Client is thread-safe for concurrent use.
//
// Example:
//
//	client := groq.NewClient(apiKey)
//	err := client.ChatStream(ctx, messages, func(fragment string) {
//	    fmt.Print(fragment)
//	})
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new Groq client with default configuration.
func NewClient(apiKey string) *Client {
	config := DefaultConfig()
	config.APIKey = apiKey
	return NewClientWithConfig(config)
}

// NewClientWithConfig creates a new Groq client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = "https://api.groq.com/openai/v1"
	}
	if config.Model == "" {
		config.Model = "llama-3.3-70b-versatile"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// IsConfigured reports whether the client has an API key.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Stream    bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Chat sends a non-streaming completion request and returns the full
// assistant response text.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	resp, err := c.post(ctx, c.httpClient, chatRequest{
		Model:     c.config.Model,
		Messages:  messages,
		MaxTokens: c.config.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return "", err
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	if len(result.Choices) == 0 {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "response contained no choices"}
	}

	return result.Choices[0].Message.Content, nil
}

// post sends the request body to /chat/completions.
func (c *Client) post(ctx context.Context, client *http.Client, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to reach Groq", Cause: err}
	}
	return resp, nil
}

// checkStatus maps HTTP error statuses to typed errors and drains the body.
func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return ErrAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return ErrRateLimited
	default:
		// Surface the upstream error body for logging; it is not sent to end users.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "unexpected status " + resp.Status + ": " + string(body),
		}
	}
}
