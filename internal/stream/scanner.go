// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream implements the SSE wire format used between the relay
// and its clients: event reassembly from arbitrary byte chunks, frame
// decoding, and fragment accumulation.
package stream

import (
	"bytes"
	"io"
	"strings"
)

// =============================================================================
// SSE SCANNER
// =============================================================================

// eventSeparator delimits complete events on the wire.
const eventSeparator = "\n\n"

// dataPrefix marks a payload line inside an event.
const dataPrefix = "data: "

// Scanner reassembles complete SSE events from an io.Reader that delivers
// bytes in arbitrary chunks. Bytes after the last complete separator are
// carried over and prepended to the next read, so an event split across
// chunk boundaries is still decoded exactly once.
type Scanner struct {
	reader io.Reader
	// PERFORMANCE: carry grows only to the size of one incomplete event
	carry   []byte
	pending []string
	readBuf []byte
	err     error
}

// NewScanner creates a scanner over r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		reader:  r,
		readBuf: make([]byte, 4096),
	}
}

// Next returns the payload of the next complete event whose data line
// carries the "data: " prefix. Lines without the prefix are ignored.
// Returns io.EOF when the reader is exhausted; any carried-over partial
// event is discarded at that point.
func (s *Scanner) Next() (string, error) {
	for {
		if len(s.pending) > 0 {
			payload := s.pending[0]
			s.pending = s.pending[1:]
			return payload, nil
		}

		if s.err != nil {
			return "", s.err
		}

		n, err := s.reader.Read(s.readBuf)
		if n > 0 {
			s.carry = append(s.carry, s.readBuf[:n]...)
			s.split()
		}
		if err != nil {
			// Defer the error until queued events are drained.
			s.err = err
		}
	}
}

// split extracts all complete events from the carry buffer and queues
// their payloads, retaining the trailing incomplete segment.
func (s *Scanner) split() {
	for {
		idx := bytes.Index(s.carry, []byte(eventSeparator))
		if idx < 0 {
			return
		}
		segment := string(s.carry[:idx])
		s.carry = s.carry[idx+len(eventSeparator):]

		if payload, ok := extractPayload(segment); ok {
			s.pending = append(s.pending, payload)
		}
	}
}

// extractPayload pulls the data payload out of one event segment.
// Only lines with the "data: " prefix participate; multiple data lines
// in one event are joined with newlines, the way SSE defines it.
func extractPayload(segment string) (string, bool) {
	var parts []string
	for _, line := range strings.Split(segment, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, dataPrefix) {
			parts = append(parts, line[len(dataPrefix):])
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}
