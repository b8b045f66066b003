// Package rooms manages group membership for live connections: one room per
// game (keyed by join code) and one per team. Delivery is best-effort,
// at-most-once; a connection that fails a write is evicted from every room.
package rooms

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Conn is a live client connection. *server.client satisfies it in
// production; tests use in-memory fakes.
type Conn interface {
	ID() string
	WriteJSON(v any) error
	Close() error
}

// Event is the wire framing for everything sent to clients.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type Hub struct {
	mu    sync.Mutex
	games map[string]map[string]Conn
	teams map[uint]map[string]Conn
}

func NewHub() *Hub {
	return &Hub{
		games: make(map[string]map[string]Conn),
		teams: make(map[uint]map[string]Conn),
	}
}

func (h *Hub) JoinGameRoom(code string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.games[code]
	if room == nil {
		room = make(map[string]Conn)
		h.games[code] = room
	}
	room[conn.ID()] = conn
}

func (h *Hub) JoinTeamRoom(teamID uint, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.teams[teamID]
	if room == nil {
		room = make(map[string]Conn)
		h.teams[teamID] = room
	}
	room[conn.ID()] = conn
}

// LeaveAll removes the connection from every room. It runs synchronously so a
// disconnecting client cannot receive a broadcast for a room it already left.
func (h *Hub) LeaveAll(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := conn.ID()
	for code, room := range h.games {
		delete(room, id)
		if len(room) == 0 {
			delete(h.games, code)
		}
	}
	for teamID, room := range h.teams {
		delete(room, id)
		if len(room) == 0 {
			delete(h.teams, teamID)
		}
	}
}

func (h *Hub) BroadcastToGame(code string, event string, payload any) {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.games[code]))
	for _, conn := range h.games[code] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	h.deliver(conns, event, payload)
}

func (h *Hub) BroadcastToTeam(teamID uint, event string, payload any) {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.teams[teamID]))
	for _, conn := range h.teams[teamID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	h.deliver(conns, event, payload)
}

func (h *Hub) SendTo(conn Conn, event string, payload any) {
	if err := conn.WriteJSON(Event{Event: event, Payload: payload}); err != nil {
		h.evict(conn)
	}
}

// ConnCount reports the number of distinct connections across all game rooms.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{})
	for _, room := range h.games {
		for id := range room {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

func (h *Hub) deliver(conns []Conn, event string, payload any) {
	message := Event{Event: event, Payload: payload}
	for _, conn := range conns {
		if err := conn.WriteJSON(message); err != nil {
			log.Warnf("dropping connection %s: %v", conn.ID(), err)
			h.evict(conn)
		}
	}
}

func (h *Hub) evict(conn Conn) {
	h.LeaveAll(conn)
	_ = conn.Close()
}
