// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session coordinates a chat exchange end to end: it gates
// concurrent sends, streams the reply onto the display surface, commits
// the completed exchange to the store, and drives title generation for
// a room's first exchange.
package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/jeranaias/kaiwa/internal/model"
	"github.com/jeranaias/kaiwa/internal/reveal"
	"github.com/jeranaias/kaiwa/internal/store"
	"github.com/jeranaias/kaiwa/internal/stream"
)

// =============================================================================
// STATES AND ERRORS
// =============================================================================

// State is the send-cycle state of the controller.
type State int

const (
	// StateIdle means no exchange is in flight.
	StateIdle State = iota

	// StateSending means the request is being established.
	StateSending

	// StateStreaming means reply frames are arriving.
	StateStreaming

	// StateCommitting means the completed reply is being persisted.
	StateCommitting

	// StateErrorRecovery means a failed send is being recorded.
	StateErrorRecovery
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCommitting:
		return "committing"
	case StateErrorRecovery:
		return "error_recovery"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned when a send is attempted while a reply is in
	// progress.
	ErrBusy = errors.New("a reply is already in progress")

	// ErrEmptyMessage is returned for messages with no content.
	ErrEmptyMessage = errors.New("message is empty")
)

// Fixed transcript text for degraded exchanges.
const (
	// EmptyReplyFallback is committed when a stream completes with no
	// text at all.
	EmptyReplyFallback = "すみません、うまく応答できませんでした。"

	// SendFailedNotice is committed when the reply stream could not be
	// established.
	SendFailedNotice = "エラーが発生しました。もう一度お試しください。"
)

// =============================================================================
// CONTROLLER DEPENDENCIES
// =============================================================================

// Streamer delivers a chat completion as ordered frames. *client.Client
// satisfies this.
type Streamer interface {
	StreamChat(ctx context.Context, messages []model.APIMessage, callback stream.FrameCallback) error
}

// Titler produces a room title from its first user message.
// *title.Generator satisfies this.
type Titler interface {
	Generate(ctx context.Context, message string) string
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller runs chat exchanges against the active room.
//
// At most one exchange is in flight at a time: Send takes the reply
// gate synchronously, before any network traffic, and releases it on
// every path out. Room management is rejected with ErrBusy while a
// reply is in progress.
type Controller struct {
	mu    sync.Mutex
	state State

	store  *store.Store
	relay  Streamer
	titles Titler
	sched  *reveal.Scheduler
}

// NewController wires a controller. titles may be nil to disable
// automatic titling.
func NewController(st *store.Store, relay Streamer, titles Titler, sched *reveal.Scheduler) *Controller {
	return &Controller{
		store:  st,
		relay:  relay,
		titles: titles,
		sched:  sched,
	}
}

// State returns the current send-cycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsReplying reports whether an exchange is in flight.
func (c *Controller) IsReplying() bool {
	return c.State() != StateIdle
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// =============================================================================
// SEND CYCLE
// =============================================================================

// Send runs one full exchange: appends the user message to the active
// room, streams the reply onto the surface, and commits the result.
// Blocks until the exchange is committed or recovery has completed.
//
// Returns ErrBusy when a reply is already in flight and ErrEmptyMessage
// for blank input; neither touches the transcript.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	// Take the gate and append the user message in one step, before any
	// IO, so a second Send can never interleave.
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateSending
	room := c.store.ActiveRoom()
	room.AddUserMessage(text)
	transcript := room.ToAPIMessages()
	c.mu.Unlock()

	// The gate is released on every path out.
	defer c.setState(StateIdle)

	acc := stream.NewAccumulator()
	err := c.relay.StreamChat(ctx, transcript, func(frame stream.Frame) {
		acc.Add(frame)
		switch frame.Kind {
		case stream.FrameText:
			c.setState(StateStreaming)
			c.revealText(ctx, frame.Text)
		case stream.FrameError:
			c.setState(StateStreaming)
			c.revealNotice(ctx, frame.Message)
		}
	})
	if err != nil {
		return c.recover(ctx, room, err)
	}

	c.commit(ctx, room, acc)
	return nil
}

// commit records the completed reply and persists the transcript. An
// entirely empty completion is replaced with fixed fallback text; a
// reply that is only whitespace is kept as-is.
func (c *Controller) commit(ctx context.Context, room *model.Room, acc *stream.Accumulator) {
	c.setState(StateCommitting)

	content := acc.Content()
	if content == "" {
		content = EmptyReplyFallback
		c.revealNotice(ctx, content)
	}
	room.AddBotMessage(content)

	if err := c.store.Persist(); err != nil {
		log.Printf("SESSION_PERSIST_FAILED | room=%s error=%v", room.ID, err)
	}

	c.maybeTitle(ctx, room)
}

// recover records a send that never produced a stream. The failure
// notice becomes the bot turn, so the transcript shows what happened.
func (c *Controller) recover(ctx context.Context, room *model.Room, cause error) error {
	c.setState(StateErrorRecovery)
	log.Printf("SESSION_SEND_FAILED | room=%s error=%v", room.ID, cause)

	c.revealNotice(ctx, SendFailedNotice)
	room.AddBotMessage(SendFailedNotice)

	if err := c.store.Persist(); err != nil {
		log.Printf("SESSION_PERSIST_FAILED | room=%s error=%v", room.ID, err)
	}
	return cause
}

// maybeTitle generates a title after the room's first exchange.
func (c *Controller) maybeTitle(ctx context.Context, room *model.Room) {
	if c.titles == nil || room.HasGeneratedTitle() {
		return
	}
	first := room.FirstUserMessage()
	if first == nil {
		return
	}

	generated := c.titles.Generate(ctx, first.Text)
	if generated == "" || generated == room.Title {
		return
	}
	if err := c.store.RenameRoom(room.ID, generated); err != nil {
		log.Printf("SESSION_TITLE_FAILED | room=%s error=%v", room.ID, err)
	}
}

func (c *Controller) revealText(ctx context.Context, text string) {
	if err := c.sched.Reveal(ctx, text); err != nil {
		log.Printf("SESSION_REVEAL_INTERRUPTED | error=%v", err)
	}
}

// revealNotice paints a notice on its own line.
func (c *Controller) revealNotice(ctx context.Context, notice string) {
	c.revealText(ctx, "\n"+notice)
}

// =============================================================================
// ROOM MANAGEMENT
// =============================================================================

// checkIdle rejects room management during a reply.
func (c *Controller) checkIdle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrBusy
	}
	return nil
}

// Rooms lists all rooms, most recently updated first.
func (c *Controller) Rooms() []*model.Room {
	return c.store.Rooms()
}

// ActiveRoom returns the room that receives sends.
func (c *Controller) ActiveRoom() *model.Room {
	return c.store.ActiveRoom()
}

// CreateRoom starts a new room and makes it active.
func (c *Controller) CreateRoom() (*model.Room, error) {
	if err := c.checkIdle(); err != nil {
		return nil, err
	}
	return c.store.CreateRoom()
}

// SelectRoom switches the active room.
func (c *Controller) SelectRoom(id string) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	return c.store.SetActive(id)
}

// DeleteRoom removes a room. The store guarantees a room survives.
func (c *Controller) DeleteRoom(id string) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	return c.store.DeleteRoom(id)
}

// RenameRoom sets a room's title by hand.
func (c *Controller) RenameRoom(id, title string) error {
	if err := c.checkIdle(); err != nil {
		return err
	}
	return c.store.RenameRoom(id, title)
}
