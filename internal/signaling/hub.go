package signaling

import (
	"log/slog"
	"sync"
)

// EventWriter is the write half of a transport connection. Satisfied by
// *wsutils.ThreadSafeWriter.
type EventWriter interface {
	WriteJSON(val any) error
}

// Hub keeps the transport-level broadcast groups: which connections receive
// a room's events. It deliberately knows nothing about call state; the
// registry owns semantics, the hub only fans out.
type Hub struct {
	mu     sync.Mutex
	groups map[string]map[string]EventWriter
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		groups: make(map[string]map[string]EventWriter),
		logger: logger,
	}
}

func (h *Hub) Join(roomID, connID string, w EventWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, exist := h.groups[roomID]
	if !exist {
		group = make(map[string]EventWriter)
		h.groups[roomID] = group
	}
	group[connID] = w
}

func (h *Hub) Leave(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, exist := h.groups[roomID]
	if !exist {
		return
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(h.groups, roomID)
	}
}

// LeaveAll detaches a vanished connection from every group it was part of.
func (h *Hub) LeaveAll(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID, group := range h.groups {
		delete(group, connID)
		if len(group) == 0 {
			delete(h.groups, roomID)
		}
	}
}

// Broadcast sends msg to every member of the room except excludeID. Pass an
// empty excludeID for an inclusive broadcast. Writes are fire-and-forget and
// happen after the member list is copied out, so no lock is held during
// network I/O and a slow socket cannot stall the group.
func (h *Hub) Broadcast(roomID string, msg any, excludeID string) {
	h.mu.Lock()
	writers := make(map[string]EventWriter, len(h.groups[roomID]))
	for connID, w := range h.groups[roomID] {
		if connID == excludeID {
			continue
		}
		writers[connID] = w
	}
	h.mu.Unlock()

	for connID, w := range writers {
		if err := w.WriteJSON(msg); err != nil {
			h.logger.Warn("broadcast write failed",
				slog.String("room", roomID),
				slog.String("sid", connID),
				slog.String("err", err.Error()))
		}
	}
}
