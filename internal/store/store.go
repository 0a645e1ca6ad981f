// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists chat rooms. Rooms live in memory and are
// mirrored to two durable values under the state directory: the full
// room mapping (rooms.json) and the active room id (active_room).
//
// Both values are read once at startup and rewritten in full after every
// state-changing operation. During a send cycle the transcript is only
// written at commit or error recovery, so a crash mid-stream leaves the
// last committed state intact.
package store

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/kaiwa/internal/model"
	"github.com/jeranaias/kaiwa/internal/util"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// StoreError represents a store operation failure.
type StoreError struct {
	Op     string
	RoomID string
	Err    error
}

func (e *StoreError) Error() string {
	if e.RoomID != "" {
		return e.Op + " " + e.RoomID + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrRoomNotFound is returned when a room id does not exist.
var ErrRoomNotFound = errors.New("room not found")

// =============================================================================
// STORE
// =============================================================================

const (
	roomsFile      = "rooms.json"
	activeRoomFile = "active_room"

	filePerm = 0600
	dirPerm  = 0700
)

// Store holds all rooms and the active room selection.
//
// The zero value is not usable; call Open.
//
// Invariant: the store always contains at least one room and the active
// id always names an existing room.
type Store struct {
	mu       sync.Mutex
	dir      string
	rooms    map[string]*model.Room
	activeID string
}

// Open loads the store from dir, creating the directory and a first
// room when nothing is persisted yet. Unreadable or corrupt state is
// logged and replaced with a fresh store rather than failing startup.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	s := &Store{
		dir:   dir,
		rooms: make(map[string]*model.Room),
	}

	s.load()

	// The collection is never empty: seed a first room if needed.
	if len(s.rooms) == 0 {
		room := model.NewRoom()
		s.rooms[room.ID] = room
		s.activeID = room.ID
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
	}

	if _, ok := s.rooms[s.activeID]; !ok {
		s.activeID = s.mostRecentLocked().ID
	}

	return s, nil
}

// load reads the two persisted values. Called once, from Open.
func (s *Store) load() {
	data, err := os.ReadFile(filepath.Join(s.dir, roomsFile))
	if err == nil {
		var rooms map[string]*model.Room
		if jsonErr := json.Unmarshal(data, &rooms); jsonErr != nil {
			log.Printf("STORE_LOAD_FAILED | file=%s error=%v", roomsFile, jsonErr)
		} else {
			for id, room := range rooms {
				if room != nil && id != "" {
					s.rooms[id] = room
				}
			}
		}
	} else if !os.IsNotExist(err) {
		log.Printf("STORE_LOAD_FAILED | file=%s error=%v", roomsFile, err)
	}

	active, err := os.ReadFile(filepath.Join(s.dir, activeRoomFile))
	if err == nil {
		s.activeID = strings.TrimSpace(string(active))
	} else if !os.IsNotExist(err) {
		log.Printf("STORE_LOAD_FAILED | file=%s error=%v", activeRoomFile, err)
	}
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Rooms returns all rooms, most recently updated first.
func (s *Store) Rooms() []*model.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]*model.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms
}

// Room returns the room with the given id.
func (s *Store) Room(id string) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, &StoreError{Op: "get", RoomID: id, Err: ErrRoomNotFound}
	}
	return room, nil
}

// ActiveRoom returns the currently active room.
func (s *Store) ActiveRoom() *model.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[s.activeID]
}

// ActiveID returns the active room id.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// RoomCount returns the number of rooms.
func (s *Store) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// CreateRoom creates a new room, makes it active, and persists.
func (s *Store) CreateRoom() (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := model.NewRoom()
	// Timestamp-derived ids can collide on rapid creation; bump until free.
	for _, exists := s.rooms[room.ID]; exists; _, exists = s.rooms[room.ID] {
		room.CreatedAt = room.CreatedAt.Add(time.Millisecond)
		room.ID = model.GenerateRoomID(room.CreatedAt)
	}

	s.rooms[room.ID] = room
	s.activeID = room.ID

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return room, nil
}

// SetActive switches the active room and persists.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return &StoreError{Op: "activate", RoomID: id, Err: ErrRoomNotFound}
	}
	s.activeID = id
	return s.persistLocked()
}

// DeleteRoom removes a room and persists.
//
// The collection never ends up empty: deleting the last room creates a
// fresh one. Deleting the active room promotes the most recently
// updated survivor.
func (s *Store) DeleteRoom(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return &StoreError{Op: "delete", RoomID: id, Err: ErrRoomNotFound}
	}
	delete(s.rooms, id)

	if len(s.rooms) == 0 {
		room := model.NewRoom()
		s.rooms[room.ID] = room
		s.activeID = room.ID
	} else if s.activeID == id {
		s.activeID = s.mostRecentLocked().ID
	}

	return s.persistLocked()
}

// RenameRoom sets a room's title and persists.
func (s *Store) RenameRoom(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return &StoreError{Op: "rename", RoomID: id, Err: ErrRoomNotFound}
	}
	room.SetTitle(title)
	return s.persistLocked()
}

// Persist rewrites both durable values from current memory state.
// The session controller calls this when committing a completed
// exchange or recovering from a send failure.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persistLocked writes both files. Caller holds s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.rooms, "", "  ")
	if err != nil {
		return &StoreError{Op: "persist", Err: err}
	}
	if err := util.AtomicWriteFileWithDir(filepath.Join(s.dir, roomsFile), data, filePerm, dirPerm); err != nil {
		return &StoreError{Op: "persist", Err: err}
	}
	if err := util.AtomicWriteFileWithDir(filepath.Join(s.dir, activeRoomFile), []byte(s.activeID), filePerm, dirPerm); err != nil {
		return &StoreError{Op: "persist", Err: err}
	}
	return nil
}

// mostRecentLocked returns the most recently updated room. Caller holds
// s.mu and guarantees the map is non-empty.
func (s *Store) mostRecentLocked() *model.Room {
	var best *model.Room
	for _, room := range s.rooms {
		if best == nil || room.UpdatedAt.After(best.UpdatedAt) {
			best = room
		}
	}
	return best
}
