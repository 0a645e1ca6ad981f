// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream implements the SSE wire format used between the relay
// and its clients.
package stream

import (
	"context"
	"encoding/json"
	"io"
	"log"
)

// =============================================================================
// FRAME TYPES
// =============================================================================

// FrameKind categorizes decoded frames.
type FrameKind int

const (
	// FrameText carries a fragment of assistant output.
	FrameText FrameKind = iota

	// FrameError carries an in-stream error notice. The stream continues
	// after an error frame.
	FrameError

	// FrameTerminal marks the end of the stream. Always the last frame.
	FrameTerminal
)

// terminalPayload is the sentinel payload that closes a stream.
const terminalPayload = "[DONE]"

// InterruptedNotice is the message attached to the error frame synthesized
// when the transport fails mid-stream.
const InterruptedNotice = "通信が中断されました。"

// Frame is one decoded unit of the relay stream protocol.
type Frame struct {
	Kind    FrameKind
	Text    string // fragment text for FrameText
	Message string // notice text for FrameError
}

// FrameCallback receives decoded frames in wire order.
type FrameCallback func(Frame)

// =============================================================================
// DECODER
// =============================================================================

// wireEvent is the JSON payload shape inside a data line.
type wireEvent struct {
	Text  *string `json:"text"`
	Error *string `json:"error"`
}

// Decoder interprets the relay stream protocol on top of a Scanner.
//
// A Decoder is single-use: it drives one response body from first byte to
// terminal frame and must not be reused afterwards.
type Decoder struct {
	scanner *Scanner
	done    bool
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{scanner: NewScanner(r)}
}

// Process reads the stream and calls the callback for each frame.
// Blocks until the terminal frame has been delivered or the context is
// cancelled.
//
// Exactly one FrameTerminal is always delivered, whatever ends the
// stream: the [DONE] sentinel, a clean close, or a transport error.
// A transport error additionally produces one FrameError before the
// terminal, and is returned for logging.
func (d *Decoder) Process(ctx context.Context, callback FrameCallback) error {
	if d.done {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			d.finish(callback)
			return ctx.Err()
		default:
		}

		payload, err := d.scanner.Next()
		if err != nil {
			if err != io.EOF {
				// Transport failed mid-stream. Surface it as an in-stream
				// error so the caller renders a notice, then terminate.
				log.Printf("STREAM_TRANSPORT_ERROR | error=%v", err)
				callback(Frame{Kind: FrameError, Message: InterruptedNotice})
				d.finish(callback)
				return err
			}
			// Upstream closed without [DONE]. Treat as normal completion.
			d.finish(callback)
			return nil
		}

		if payload == terminalPayload {
			d.finish(callback)
			return nil
		}

		var event wireEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			// Malformed frames are dropped, never fatal.
			log.Printf("STREAM_FRAME_SKIP | reason=malformed_json payload_len=%d", len(payload))
			continue
		}

		switch {
		case event.Error != nil:
			callback(Frame{Kind: FrameError, Message: *event.Error})
		case event.Text != nil:
			callback(Frame{Kind: FrameText, Text: *event.Text})
		default:
			log.Printf("STREAM_FRAME_SKIP | reason=unknown_shape payload_len=%d", len(payload))
		}
	}
}

// finish delivers the terminal frame exactly once.
func (d *Decoder) finish(callback FrameCallback) {
	if d.done {
		return
	}
	d.done = true
	callback(Frame{Kind: FrameTerminal})
}

// =============================================================================
// FRAME CHANNEL ADAPTER
// =============================================================================

// ProcessChan returns a channel of frames for select-based consumers.
// The channel is closed after the terminal frame.
func (d *Decoder) ProcessChan(ctx context.Context) <-chan Frame {
	frames := make(chan Frame, 16)
	go func() {
		defer close(frames)
		d.Process(ctx, func(f Frame) {
			select {
			case frames <- f:
			case <-ctx.Done():
			}
		})
	}()
	return frames
}
