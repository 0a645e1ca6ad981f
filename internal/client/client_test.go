// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client provides the HTTP client for the relay server API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jeranaias/kaiwa/internal/model"
	"github.com/jeranaias/kaiwa/internal/stream"
)

func newTestClient(url string) *Client {
	return New(&Config{BaseURL: url})
}

// =============================================================================
// STREAM CHAT TESTS
// =============================================================================

func TestStreamChat_DecodesFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("request messages = %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"text\":\"やあ\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	var frames []stream.Frame
	err := newTestClient(server.URL).StreamChat(context.Background(),
		[]model.APIMessage{{Role: "user", Content: "hi"}},
		func(f stream.Frame) { frames = append(frames, f) })
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %+v", len(frames), frames)
	}
	if frames[0].Kind != stream.FrameText || frames[0].Text != "やあ" {
		t.Errorf("frame 0 = %+v", frames[0])
	}
	if frames[1].Kind != stream.FrameTerminal {
		t.Errorf("frame 1 = %+v, want terminal", frames[1])
	}
}

func TestStreamChat_RejectionBeforeStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "メッセージが指定されていません。"})
	}))
	defer server.Close()

	err := newTestClient(server.URL).StreamChat(context.Background(), nil, func(stream.Frame) {
		t.Error("no frames expected on rejection")
	})

	var relayErr *RelayError
	if !errors.As(err, &relayErr) || relayErr.Type != ErrTypeRejected {
		t.Fatalf("error = %v, want ErrTypeRejected", err)
	}
	if relayErr.Message != "メッセージが指定されていません。" {
		t.Errorf("message = %q, want relay's error text", relayErr.Message)
	}
}

func TestStreamChat_ConnectionRefused(t *testing.T) {
	// Port from a closed test server: connection refused.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := newTestClient(url).StreamChat(context.Background(),
		[]model.APIMessage{{Role: "user", Content: "x"}}, func(stream.Frame) {})

	var relayErr *RelayError
	if !errors.As(err, &relayErr) || relayErr.Type != ErrTypeConnection {
		t.Errorf("error = %v, want ErrTypeConnection", err)
	}
}

func TestStreamChat_MidStreamFailureSurfacesAsFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"text\":\"途中\"}\n\n")
		flusher.Flush()
		// Drop the connection without [DONE].
		conn, _, _ := w.(http.Hijacker).Hijack()
		conn.Close()
	}))
	defer server.Close()

	var frames []stream.Frame
	err := newTestClient(server.URL).StreamChat(context.Background(),
		[]model.APIMessage{{Role: "user", Content: "x"}},
		func(f stream.Frame) { frames = append(frames, f) })

	// Established streams never return errors; the decoder reports in-band.
	if err != nil {
		t.Fatalf("StreamChat returned %v, want nil after stream established", err)
	}
	if len(frames) == 0 || frames[len(frames)-1].Kind != stream.FrameTerminal {
		t.Errorf("frames = %+v, want terminal last", frames)
	}
}

// =============================================================================
// TITLE TESTS
// =============================================================================

func TestSummarizeTitle_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/summarize-title" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req titleRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Message == "" || req.MaxLength != 20 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "title": "今日の天気について"})
	}))
	defer server.Close()

	title, err := newTestClient(server.URL).SummarizeTitle(context.Background(), "こんにちは、今日の天気について教えてください", 20)
	if err != nil {
		t.Fatalf("SummarizeTitle failed: %v", err)
	}
	if title != "今日の天気について" {
		t.Errorf("title = %q", title)
	}
}

func TestSummarizeTitle_RelayFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "タイトルの生成に失敗しました。"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SummarizeTitle(context.Background(), "x", 0)
	if err == nil {
		t.Fatal("expected error on relay failure")
	}
}

func TestSummarizeTitle_EmptyTitleIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "title": ""})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SummarizeTitle(context.Background(), "x", 10)
	if err == nil {
		t.Fatal("empty title must be treated as failure")
	}
}
