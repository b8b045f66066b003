package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Client->server event names.
const (
	eventJoinGame    = "join-game"
	eventSendMessage = "send-message"
	eventUpdateScore = "update-score"
	eventError       = "error"
)

type clientEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type joinGamePayload struct {
	Code       string `json:"code"`
	PlayerName string `json:"playerName"`
	TeamID     uint   `json:"teamId"`
	Role       string `json:"role"`
}

type sendMessagePayload struct {
	TeamID     uint   `json:"teamId"`
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
}

type updateScorePayload struct {
	TeamID uint `json:"teamId"`
	Points int  `json:"points"`
}

// client wraps a websocket connection with a stable identity and a write
// lock; gorilla connections do not allow concurrent writers.
type client struct {
	id   string
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) ID() string { return c.id }

func (c *client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *client) Close() error { return c.conn.Close() }

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}
	log.Infof("ws connected conn=%s remote=%s", c.id, r.RemoteAddr)
	go s.readWS(c)
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) readWS(c *client) {
	ctx := context.Background()
	defer func() {
		s.coord.Leave(ctx, c)
		_ = c.Close()
		log.Infof("ws disconnected conn=%s", c.id)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var event clientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			s.sendErrorEvent(c, "malformed event")
			continue
		}
		s.dispatch(ctx, c, event)
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, event clientEvent) {
	switch event.Event {
	case eventJoinGame:
		var payload joinGamePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			s.sendErrorEvent(c, "malformed join-game payload")
			return
		}
		if _, _, err := s.coord.JoinGame(ctx, payload.Code, payload.PlayerName, payload.TeamID, payload.Role, c); err != nil {
			s.sendErrorEvent(c, err.Error())
		}
	case eventSendMessage:
		var payload sendMessagePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			s.sendErrorEvent(c, "malformed send-message payload")
			return
		}
		if _, err := s.coord.SendMessage(ctx, payload.TeamID, payload.PlayerName, payload.Message); err != nil {
			s.sendErrorEvent(c, err.Error())
		}
	case eventUpdateScore:
		var payload updateScorePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			s.sendErrorEvent(c, "malformed update-score payload")
			return
		}
		if _, err := s.coord.UpdateScore(ctx, payload.TeamID, payload.Points); err != nil {
			s.sendErrorEvent(c, err.Error())
		}
	default:
		log.Warnf("unknown event received: %s", event.Event)
		s.sendErrorEvent(c, "unknown event")
	}
}

func (s *Server) sendErrorEvent(c *client, message string) {
	s.hub.SendTo(c, eventError, map[string]any{"message": message})
}
