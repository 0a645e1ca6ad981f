// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package title derives short room titles from the first user message.
//
// Titles come from the relay's summarize endpoint when it is reachable;
// otherwise a deterministic local heuristic strips greetings and request
// boilerplate from the message and truncates what remains. The local
// path never fails: a message that reduces to nothing gets the default
// room title.
package title

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/jeranaias/kaiwa/internal/model"
	"github.com/jeranaias/kaiwa/internal/util"
)

// =============================================================================
// GENERATOR
// =============================================================================

// DefaultMaxLength is the rune limit for generated titles.
const DefaultMaxLength = 20

// Summarizer produces a title remotely. *client.Client satisfies this.
type Summarizer interface {
	SummarizeTitle(ctx context.Context, message string, maxLength int) (string, error)
}

// Generator turns a first user message into a room title.
type Generator struct {
	// MaxLength is the rune limit for titles (default: 20).
	MaxLength int

	remote Summarizer
}

// NewGenerator creates a generator. remote may be nil for local-only
// generation.
func NewGenerator(remote Summarizer, maxLength int) *Generator {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Generator{MaxLength: maxLength, remote: remote}
}

// Generate returns a non-empty title for the message. The remote
// summarizer is tried first; any remote failure falls back to the local
// heuristic, so callers always get a usable title.
func (g *Generator) Generate(ctx context.Context, message string) string {
	if g.remote != nil {
		title, err := g.remote.SummarizeTitle(ctx, message, g.MaxLength)
		if err == nil && title != "" {
			return title
		}
		if err != nil {
			log.Printf("TITLE_REMOTE_FAILED | error=%v", err)
		}
	}
	return GenerateTitleFromMessage(message, g.MaxLength)
}

// =============================================================================
// LOCAL HEURISTIC
// =============================================================================

// greetingPrefix matches a leading greeting plus any trailing
// punctuation, so "こんにちは、今日の天気..." drops straight to the topic.
// English greetings must be followed by punctuation, space, or end of
// string, so "History" keeps its "Hi".
var greetingPrefix = regexp.MustCompile(
	`^(?:こんにちは|こんばんは|おはようございます|おはよう|はじめまして|もしもし|やあ|(?:[Hh]ello|[Hh]i|[Hh]ey)(?:[、。,.!！?？\s]|$))[、。,.!！?？\s]*`)

// requestSuffixes are polite request endings stripped from the tail.
// Ordered longest first so compound endings are removed whole.
var requestSuffixes = []string{
	"教えてくださいませんか",
	"を教えてください",
	"お願いいたします",
	"をお願いします",
	"教えてください",
	"教えてほしい",
	"してください",
	"お願いします",
	"でしょうか",
	"ください",
	"教えて",
	"ですか",
	"ますか",
}

// trailingPunct trims sentence punctuation left dangling after suffix
// removal.
var trailingPunct = regexp.MustCompile(`[、。,.!！?？\s]+$`)

// GenerateTitleFromMessage derives a title locally, without the relay.
//
// The message is stripped of a leading greeting and a trailing request
// phrase, whitespace is collapsed, and the result is truncated to
// maxLength runes, preferring a sentence boundary. An empty result
// falls back to the default room title.
func GenerateTitleFromMessage(message string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	s := util.CollapseWhitespace(message)
	s = greetingPrefix.ReplaceAllString(s, "")

	for _, suffix := range requestSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	s = trailingPunct.ReplaceAllString(s, "")

	s = truncateAtBoundary(s, maxLength)

	if s == "" {
		return model.DefaultTitle
	}
	return s
}

// truncateAtBoundary cuts s to at most maxRunes runes. A sentence
// boundary inside the window wins, then a space boundary, then a hard
// rune cut.
func truncateAtBoundary(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	window := runes[:maxRunes]

	for i := len(window) - 1; i > 0; i-- {
		switch window[i] {
		case '。', '！', '？', '!', '?':
			return string(window[:i+1])
		}
	}
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == ' ' {
			return string(window[:i])
		}
	}
	return string(window)
}
