// internal/game/room_store.go
package game

import (
	"sync"

	"github.com/floodlab/levee/internal/config"
	"github.com/floodlab/levee/internal/models"
)

// RoomStore manages live rooms in memory. It is constructed once by the
// server process and injected wherever rooms are looked up; tests build a
// fresh store each for clean isolation.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*Room

	// WireRoom, when set, runs on every room JoinOrCreate builds, before the
	// first participant is seated. The transport layer installs the broadcast
	// functions here so no early event fires into a nil hook.
	WireRoom func(*Room)
}

// NewRoomStore returns an empty in-memory room registry.
func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*Room)}
}

// AddRoom stores a room.
func (s *RoomStore) AddRoom(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.Name] = r
}

// GetRoom retrieves a room if it exists.
func (s *RoomStore) GetRoom(name string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[name]
	return r, ok
}

// DeleteRoom removes a room from the registry.
func (s *RoomStore) DeleteRoom(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, name)
}

// Rooms returns a snapshot of the live rooms, typically for listing.
func (s *RoomStore) Rooms() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// JoinOrCreate seats a participant in the first room of the requested
// condition that is still in its waiting room with an open slot, creating a
// new room when none qualifies.
func (s *RoomStore) JoinOrCreate(cfg config.Experiment, condition string, p *models.Participant) (*Room, error) {
	s.mu.Lock()
	var target *Room
	for _, r := range s.rooms {
		if r.Condition == condition && r.Joinable() {
			target = r
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		r, err := s.openRoom(cfg, condition)
		if err != nil {
			return nil, err
		}
		target = r
	}

	if err := target.Seat(p); err != nil {
		// The room filled between the scan and the seat; retry with a
		// fresh room.
		r, cerr := s.openRoom(cfg, condition)
		if cerr != nil {
			return nil, cerr
		}
		if serr := r.Seat(p); serr != nil {
			return nil, serr
		}
		return r, nil
	}
	return target, nil
}

// openRoom builds and registers a fresh room, wired for transport before it
// becomes reachable.
func (s *RoomStore) openRoom(cfg config.Experiment, condition string) (*Room, error) {
	r, err := NewRoom(cfg, condition)
	if err != nil {
		return nil, err
	}
	if s.WireRoom != nil {
		s.WireRoom(r)
	}
	r.OnTerminal = func(name string) { s.DeleteRoom(name) }
	s.AddRoom(r)
	return r, nil
}
