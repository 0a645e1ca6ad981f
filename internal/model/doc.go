// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat rooms and messages.
//
// This package defines the core domain types used throughout the application
// for representing chat rooms and their transcripts.
//
// # Key Types
//
//   - Room: Container for one chat transcript with title and timestamps
//   - Message: Single transcript entry with text and sender
//   - Sender: Message origin enumeration (user, bot)
//
// # Usage
//
// Create a new room and add messages:
//
//	room := model.NewRoom()
//	room.AddUserMessage("こんにちは")
//
// Convert a transcript to the relay wire format:
//
//	msgs := room.ToAPIMessages() // roles: user / assistant
package model
