// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay provides the HTTP relay server between chat clients and
// the upstream completion provider.
//
// Endpoints:
//   - POST /api/chat            - Stream a chat completion over SSE
//   - POST /api/summarize-title - Generate a short room title
//   - GET  /health              - Health check
//
// The /api/chat stream carries three frame shapes, each as one SSE event:
//
//	data: {"text":"..."}   assistant output fragment
//	data: {"error":"..."}  in-stream error notice (stream continues)
//	data: [DONE]           terminal marker, always the last event
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the relay server.
	DefaultPort = 3000

	// MaxMessageLength is the maximum length for a single message content.
	MaxMessageLength = 100000

	// MaxMessageCount is the maximum number of messages in a request.
	MaxMessageCount = 100

	// MaxRequestBodySize is the maximum size for request body to prevent DoS (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// DefaultTitleMaxLength is the rune limit for generated titles when the
	// request does not specify one.
	DefaultTitleMaxLength = 20

	// Version is the server version.
	Version = "0.3.0"
)

// Fixed user-facing notices. These travel to the client verbatim, so they
// stay in the UI language.
const (
	noticeMissingMessages = "メッセージが指定されていません。"
	noticeInvalidRequest  = "リクエストの形式が正しくありません。"
	noticeUpstreamFailed  = "AIからの応答取得に失敗しました。"
	noticeTitleFailed     = "タイトルの生成に失敗しました。"
)

// validRoles defines the set of acceptable message roles.
var validRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

// validateMessages validates that all message roles are acceptable.
// Returns an error if any message has an invalid role or oversized content.
func validateMessages(messages []ChatMessage) error {
	for i, msg := range messages {
		if !validRoles[msg.Role] {
			return fmt.Errorf("invalid role '%s' at message %d: must be one of user, assistant, system", msg.Role, i)
		}
		if len(msg.Content) > MaxMessageLength {
			return fmt.Errorf("message %d exceeds maximum length of %d", i, MaxMessageLength)
		}
	}
	return nil
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the relay HTTP server.
type Server struct {
	port   int
	router *http.ServeMux
	server *http.Server

	provider Provider
	cors     *CORSConfig
	limiter  *RateLimiter

	mu sync.RWMutex
}

// NewServer creates a new Server with the specified port and provider.
// If port is 0, the default port (3000) is used.
func NewServer(port int, provider Provider) *Server {
	if port == 0 {
		port = DefaultPort
	}

	s := &Server{
		port:     port,
		router:   http.NewServeMux(),
		provider: provider,
		cors:     DefaultCORSConfig(),
		limiter:  DefaultRateLimiter(),
	}

	s.setupRoutes()
	return s
}

// WithCORS sets a custom CORS configuration.
func (s *Server) WithCORS(config *CORSConfig) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cors = config
	return s
}

// WithRateLimiter sets a custom rate limiter.
func (s *Server) WithRateLimiter(limiter *RateLimiter) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter = limiter
	return s
}

// SetProvider swaps the upstream provider. Used by config hot reload;
// in-flight requests finish on the provider they started with.
func (s *Server) SetProvider(provider Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = provider
}

func (s *Server) currentProvider() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// Port returns the server port.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the fully assembled handler, middleware included.
// Exposed for tests.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(log.Default()),
		CORSMiddleware(s.cors),
		RateLimitMiddleware(s.limiter),
	)(s.router)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("POST /api/summarize-title", s.handleSummarizeTitle)
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// ============================================================================
// CHAT HANDLER
// ============================================================================

// ChatRequest is the request body for POST /api/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// textFrame and errorFrame are the JSON payloads of stream events.
type textFrame struct {
	Text string `json:"text"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// handleChat handles POST /api/chat.
//
// Validation failures are rejected with a JSON 400 before any stream
// bytes are written. Once the SSE headers have gone out, every failure
// is reported in-stream: an error frame followed by the terminal frame.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("CHAT_BAD_REQUEST | error=%v", err)
		s.writeError(w, http.StatusBadRequest, noticeInvalidRequest)
		return
	}

	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, noticeMissingMessages)
		return
	}
	if len(req.Messages) > MaxMessageCount {
		s.writeError(w, http.StatusBadRequest, noticeInvalidRequest)
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		log.Printf("CHAT_VALIDATION_FAILED | error=%v", err)
		s.writeError(w, http.StatusBadRequest, noticeInvalidRequest)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, noticeUpstreamFailed)
		return
	}

	start := time.Now()
	fragments := 0

	err := s.currentProvider().StreamCompletion(r.Context(), req.Messages, func(fragment string) {
		fragments++
		s.sendFrame(w, flusher, textFrame{Text: fragment})
	})
	if err != nil {
		// Headers are already out. Report in-stream and terminate normally
		// so the client always sees the terminal frame.
		log.Printf("CHAT_UPSTREAM_ERROR | error=%v fragments=%d", err, fragments)
		s.sendFrame(w, flusher, errorFrame{Error: noticeUpstreamFailed})
	}

	// Send terminal marker. Always the last event on the stream.
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()

	log.Printf("CHAT_COMPLETE | fragments=%d latency=%dms", fragments, time.Since(start).Milliseconds())
}

// sendFrame sends a single SSE event carrying the JSON-encoded payload.
func (s *Server) sendFrame(w http.ResponseWriter, flusher http.Flusher, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// ============================================================================
// TITLE HANDLER
// ============================================================================

// SummarizeTitleRequest is the request body for POST /api/summarize-title.
type SummarizeTitleRequest struct {
	Message   string `json:"message"`
	MaxLength int    `json:"maxLength,omitempty"`
}

// SummarizeTitleResponse is the success response body.
type SummarizeTitleResponse struct {
	OK    bool   `json:"ok"`
	Title string `json:"title"`
}

// handleSummarizeTitle handles POST /api/summarize-title.
func (s *Server) handleSummarizeTitle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req SummarizeTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("TITLE_BAD_REQUEST | error=%v", err)
		s.writeError(w, http.StatusBadRequest, noticeInvalidRequest)
		return
	}

	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, noticeMissingMessages)
		return
	}
	maxLength := req.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultTitleMaxLength
	}

	title, err := s.currentProvider().Complete(r.Context(), titlePrompt(req.Message, maxLength))
	if err != nil {
		log.Printf("TITLE_UPSTREAM_ERROR | error=%v", err)
		s.writeError(w, http.StatusBadGateway, noticeTitleFailed)
		return
	}

	title = sanitizeTitle(title, maxLength)
	if title == "" {
		s.writeError(w, http.StatusBadGateway, noticeTitleFailed)
		return
	}

	s.writeJSON(w, http.StatusOK, SummarizeTitleResponse{OK: true, Title: title})
}

// titlePrompt builds the summarization request sent upstream.
func titlePrompt(message string, maxLength int) []ChatMessage {
	return []ChatMessage{
		{
			Role: "system",
			Content: fmt.Sprintf(
				"あなたはチャットのタイトルを付けるアシスタントです。ユーザーのメッセージを%d文字以内の簡潔な日本語タイトルに要約してください。タイトルのみを返し、引用符や句点は付けないでください。",
				maxLength,
			),
		},
		{Role: "user", Content: message},
	}
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		// WriteTimeout must cover the longest completion stream.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the relay's JSON error envelope.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"ok":    false,
		"error": message,
	})
}

// sanitizeTitle trims quotes and whitespace the model tends to add and
// enforces the rune limit.
func sanitizeTitle(title string, maxLength int) string {
	runes := []rune(strings.TrimSpace(title))
	// Strip surrounding quotes the model sometimes adds despite instructions.
	for len(runes) >= 2 && isQuote(runes[0]) && isQuote(runes[len(runes)-1]) {
		runes = runes[1 : len(runes)-1]
	}
	out := strings.TrimSpace(string(runes))
	runes = []rune(out)
	if len(runes) > maxLength {
		out = string(runes[:maxLength])
	}
	return out
}

func isQuote(r rune) bool {
	switch r {
	case '"', '\'', '「', '」', '『', '』', '“', '”':
		return true
	}
	return false
}
