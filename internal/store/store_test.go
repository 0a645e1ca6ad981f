// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/kaiwa/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

// =============================================================================
// STARTUP TESTS
// =============================================================================

func TestOpen_SeedsFirstRoom(t *testing.T) {
	s := openTestStore(t)

	require.Equal(t, 1, s.RoomCount())
	active := s.ActiveRoom()
	require.NotNil(t, active)
	assert.Equal(t, model.DefaultTitle, active.Title)
	assert.Equal(t, active.ID, s.ActiveID())
}

func TestOpen_WritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, roomsFile))
	require.NoError(t, err)
	var rooms map[string]*model.Room
	require.NoError(t, json.Unmarshal(data, &rooms))
	assert.Len(t, rooms, 1)

	active, err := os.ReadFile(filepath.Join(dir, activeRoomFile))
	require.NoError(t, err)
	assert.Equal(t, s.ActiveID(), string(active))
}

func TestOpen_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	require.NoError(t, err)
	room := s1.ActiveRoom()
	room.AddUserMessage("こんにちは")
	room.AddBotMessage("こんにちは！何かお手伝いできますか？")
	require.NoError(t, s1.RenameRoom(room.ID, "挨拶"))

	s2, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, 1, s2.RoomCount())

	loaded := s2.ActiveRoom()
	require.NotNil(t, loaded)
	assert.Equal(t, room.ID, loaded.ID)
	assert.Equal(t, "挨拶", loaded.Title)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "こんにちは", loaded.Messages[0].Text)
	assert.Equal(t, model.SenderBot, loaded.Messages[1].Sender)
}

func TestOpen_CorruptRoomsFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, roomsFile), []byte("{not json"), 0600))

	s, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, s.RoomCount())
}

func TestOpen_StaleActiveIDFallsBack(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)
	keep := s1.ActiveRoom().ID

	// Point the active id at a room that no longer exists.
	require.NoError(t, os.WriteFile(filepath.Join(dir, activeRoomFile), []byte("room_0"), 0600))

	s2, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, keep, s2.ActiveID())
}

// =============================================================================
// ROOM LIFECYCLE TESTS
// =============================================================================

func TestCreateRoom_BecomesActive(t *testing.T) {
	s := openTestStore(t)
	first := s.ActiveID()

	room, err := s.CreateRoom()
	require.NoError(t, err)

	assert.Equal(t, 2, s.RoomCount())
	assert.Equal(t, room.ID, s.ActiveID())
	assert.NotEqual(t, first, room.ID)
}

func TestCreateRoom_RapidCreationGetsUniqueIDs(t *testing.T) {
	s := openTestStore(t)

	seen := map[string]bool{s.ActiveID(): true}
	for i := 0; i < 10; i++ {
		room, err := s.CreateRoom()
		require.NoError(t, err)
		assert.False(t, seen[room.ID], "duplicate id %s", room.ID)
		seen[room.ID] = true
	}
	assert.Equal(t, 11, s.RoomCount())
}

func TestSetActive(t *testing.T) {
	s := openTestStore(t)
	first := s.ActiveID()
	_, err := s.CreateRoom()
	require.NoError(t, err)

	require.NoError(t, s.SetActive(first))
	assert.Equal(t, first, s.ActiveID())

	err = s.SetActive("room_0")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestDeleteRoom_LastRoomCreatesFresh(t *testing.T) {
	s := openTestStore(t)
	old := s.ActiveRoom()
	old.AddUserMessage("残したくない")

	require.NoError(t, s.DeleteRoom(old.ID))

	// Never empty: a fresh room replaces the last one.
	require.Equal(t, 1, s.RoomCount())
	fresh := s.ActiveRoom()
	require.NotNil(t, fresh)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Empty(t, fresh.Messages)
	assert.Equal(t, model.DefaultTitle, fresh.Title)
}

func TestDeleteRoom_ActivePromotesMostRecent(t *testing.T) {
	s := openTestStore(t)
	first := s.ActiveRoom()
	second, err := s.CreateRoom()
	require.NoError(t, err)
	// Touch the first room so it is the most recently updated survivor.
	first.AddUserMessage("最新")

	require.NoError(t, s.DeleteRoom(second.ID))

	assert.Equal(t, 1, s.RoomCount())
	assert.Equal(t, first.ID, s.ActiveID())
}

func TestDeleteRoom_InactiveKeepsActive(t *testing.T) {
	s := openTestStore(t)
	first := s.ActiveID()
	second, err := s.CreateRoom()
	require.NoError(t, err)

	require.NoError(t, s.DeleteRoom(first))

	assert.Equal(t, second.ID, s.ActiveID())
}

func TestDeleteRoom_NotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.DeleteRoom("room_0")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "delete", storeErr.Op)
}

// =============================================================================
// PERSISTENCE TESTS
// =============================================================================

func TestPersist_WritesAppendedMessages(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)

	// Appends alone are in-memory; Persist makes them durable.
	s1.ActiveRoom().AddUserMessage("保存して")
	require.NoError(t, s1.Persist())

	s2, err := Open(dir)
	require.NoError(t, err)
	require.Len(t, s2.ActiveRoom().Messages, 1)
	assert.Equal(t, "保存して", s2.ActiveRoom().Messages[0].Text)
}

func TestRooms_SortedMostRecentFirst(t *testing.T) {
	s := openTestStore(t)
	first := s.ActiveRoom()
	_, err := s.CreateRoom()
	require.NoError(t, err)
	first.AddUserMessage("一番新しい")

	rooms := s.Rooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, first.ID, rooms[0].ID)
}
