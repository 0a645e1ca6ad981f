// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay provides the HTTP relay server between chat clients and
// the upstream completion provider.
package relay

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// =============================================================================
// RATE LIMIT TESTS
// =============================================================================

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	// Near-zero refill so the burst is the effective budget.
	limiter := NewRateLimiter(0.001, 3)

	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow("203.0.113.9") {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("allowed %d requests, want burst of 3", allowed)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)

	if !limiter.Allow("203.0.113.1") {
		t.Error("first request from IP 1 should pass")
	}
	if limiter.Allow("203.0.113.1") {
		t.Error("second request from IP 1 should be limited")
	}
	if !limiter.Allow("203.0.113.2") {
		t.Error("request from a different IP should pass")
	}
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	handler := RateLimitMiddleware(limiter)(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/health", nil)
	first.RemoteAddr = "203.0.113.50:1234"
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, first)
	if w1.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w1.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/health", nil)
	second.RemoteAddr = "203.0.113.50:1235"
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, second)
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", w2.Code)
	}
}

// =============================================================================
// CORS TESTS
// =============================================================================

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	handler := CORSMiddleware(DefaultCORSConfig())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORSMiddleware_DisallowedOrigin(t *testing.T) {
	handler := CORSMiddleware(DefaultCORSConfig())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want unset", got)
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	handler := CORSMiddleware(DefaultCORSConfig())(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
}

// =============================================================================
// CLIENT IP TESTS
// =============================================================================

func TestGetClientIP_DirectConnection(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"

	if got := GetClientIP(req); got != "203.0.113.7" {
		t.Errorf("GetClientIP = %q", got)
	}
}

func TestGetClientIP_SpoofedHeaderIgnored(t *testing.T) {
	// Forwarded headers from an untrusted peer must be ignored.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := GetClientIP(req); got != "203.0.113.7" {
		t.Errorf("GetClientIP = %q, spoofed header honored", got)
	}
}

func TestGetClientIP_TrustedProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.23")

	if got := GetClientIP(req); got != "198.51.100.23" {
		t.Errorf("GetClientIP = %q, want forwarded address", got)
	}
}

// =============================================================================
// RECOVERY TESTS
// =============================================================================

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req) // must not panic

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
