package realtime

import (
	"sync"
)

// Hub tracks websocket sessions and meeting rooms. Every session follows at
// most one meeting at a time; a meeting can have several followers, so
// outbound events fan out to the whole room.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[string]*Connection           // sessionID -> connection
	rooms       map[int64]map[string]*Connection // meetingID -> sessionID -> connection
	sessionRoom map[string]int64                 // sessionID -> meetingID
}

// NewHub constructs an initialized Hub.
func NewHub() *Hub {
	return &Hub{
		sessions:    make(map[string]*Connection),
		rooms:       make(map[int64]map[string]*Connection),
		sessionRoom: make(map[string]int64),
	}
}

// Attach registers a connection and starts its write loop.
func (h *Hub) Attach(conn *Connection) {
	h.mu.Lock()
	h.sessions[conn.ID] = conn
	h.mu.Unlock()

	conn.Start()
}

// Detach removes a connection and its room membership.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	h.detachLocked(conn.ID)
	h.mu.Unlock()
}

// Join moves the connection into the meeting room, leaving any previous one.
func (h *Hub) Join(meetingID int64, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[conn.ID]; !ok {
		return
	}
	if prev, ok := h.sessionRoom[conn.ID]; ok && prev != meetingID {
		h.leaveLocked(prev, conn.ID)
	}

	room := h.rooms[meetingID]
	if room == nil {
		room = make(map[string]*Connection)
		h.rooms[meetingID] = room
	}
	room[conn.ID] = conn
	h.sessionRoom[conn.ID] = meetingID
}

// Broadcast writes payload to every follower of the meeting and reports how
// many deliveries succeeded.
func (h *Hub) Broadcast(meetingID int64, payload []byte) int {
	h.mu.RLock()
	room := h.rooms[meetingID]
	delivered := 0
	for _, conn := range room {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	h.mu.RUnlock()
	return delivered
}

// Close terminates all tracked connections and clears hub state.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Connection, 0, len(h.sessions))
	for _, conn := range h.sessions {
		sessions = append(sessions, conn)
	}
	h.sessions = make(map[string]*Connection)
	h.rooms = make(map[int64]map[string]*Connection)
	h.sessionRoom = make(map[string]int64)
	h.mu.Unlock()

	for _, conn := range sessions {
		conn.Close(1001, "hub shutdown")
	}
}

func (h *Hub) detachLocked(sessionID string) {
	if _, ok := h.sessions[sessionID]; !ok {
		return
	}
	delete(h.sessions, sessionID)
	if meetingID, ok := h.sessionRoom[sessionID]; ok {
		h.leaveLocked(meetingID, sessionID)
	}
}

func (h *Hub) leaveLocked(meetingID int64, sessionID string) {
	room := h.rooms[meetingID]
	if room == nil {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(h.rooms, meetingID)
	}
	delete(h.sessionRoom, sessionID)
}
