package signaling

import (
	"sync"
)

// roomState is one live call room. Mutated only while the registry mutex is
// held; it never leaves the registry by reference.
type roomState struct {
	members  map[string]struct{}
	accepted bool
}

// RoomInfo is a read-only snapshot of a room, exposed for diagnostics.
type RoomInfo struct {
	RoomID   string   `json:"roomId"`
	Members  []string `json:"members"`
	Accepted bool     `json:"accepted"`
}

// RoomRegistry is the process-wide store of live call rooms. Every operation
// is a single atomic check-and-act step under one mutex: a join can never
// race another join past the capacity check, and a join to a room that is
// concurrently being emptied either lands on the old state before deletion
// or recreates a fresh one, never on a dangling room.
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[string]*roomState
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*roomState),
	}
}

// Join adds connID to the room, creating the room when absent. The capacity
// check happens before any mutation.
func (r *RoomRegistry) Join(roomID, connID string, maxMembers int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exist := r.rooms[roomID]
	if !exist {
		state = &roomState{members: make(map[string]struct{})}
	}

	if len(state.members) >= maxMembers {
		return ErrRoomFull
	}

	state.members[connID] = struct{}{}
	r.rooms[roomID] = state
	return nil
}

// Leave removes connID from the room when present. Removing an absent member
// is a no-op. A room whose membership drops to zero is deleted in the same
// critical section; the returned flag reports that deletion.
func (r *RoomRegistry) Leave(roomID, connID string) (emptied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exist := r.rooms[roomID]
	if !exist {
		return false
	}

	delete(state.members, connID)
	if len(state.members) == 0 {
		delete(r.rooms, roomID)
		return true
	}
	return false
}

// Accept marks the room as accepted. Reports whether the room existed.
func (r *RoomRegistry) Accept(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exist := r.rooms[roomID]
	if !exist {
		return false
	}
	state.accepted = true
	return true
}

// ClearAccepted re-gates the room after a call ends. The room itself
// survives so it can be accepted again without rejoining.
func (r *RoomRegistry) ClearAccepted(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exist := r.rooms[roomID]
	if !exist {
		return false
	}
	state.accepted = false
	return true
}

func (r *RoomRegistry) Accepted(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exist := r.rooms[roomID]
	return exist && state.accepted
}

func (r *RoomRegistry) Exists(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exist := r.rooms[roomID]
	return exist
}

func (r *RoomRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms)
}

// MemberRooms lists every room currently holding connID. Disconnect cleanup
// uses it because a vanished connection is not known to belong to any
// particular room ahead of time.
func (r *RoomRegistry) MemberRooms(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []string
	for roomID, state := range r.rooms {
		if _, ok := state.members[connID]; ok {
			result = append(result, roomID)
		}
	}
	return result
}

// Snapshot returns read-only copies of every room for diagnostics.
func (r *RoomRegistry) Snapshot() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]RoomInfo, 0, len(r.rooms))
	for roomID, state := range r.rooms {
		members := make([]string, 0, len(state.members))
		for connID := range state.members {
			members = append(members, connID)
		}
		result = append(result, RoomInfo{
			RoomID:   roomID,
			Members:  members,
			Accepted: state.accepted,
		})
	}
	return result
}

// PruneEmpty removes rooms without members. Correct operation never leaves
// such rooms behind, the safe-repair job runs this as a defensive sweep and
// reports how many it found.
func (r *RoomRegistry) PruneEmpty() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for roomID, state := range r.rooms {
		if len(state.members) == 0 {
			delete(r.rooms, roomID)
			pruned++
		}
	}
	return pruned
}
