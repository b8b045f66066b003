package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ResikPresik/manager-battle-backend/internal/rooms"
)

// Broadcaster delivers events to room members. *rooms.Hub satisfies it;
// coordinator tests use a recording fake.
type Broadcaster interface {
	JoinGameRoom(code string, conn rooms.Conn)
	JoinTeamRoom(teamID uint, conn rooms.Conn)
	LeaveAll(conn rooms.Conn)
	BroadcastToGame(code string, event string, payload any)
	BroadcastToTeam(teamID uint, event string, payload any)
	SendTo(conn rooms.Conn, event string, payload any)
}

// Event names sent to clients.
const (
	EventGameJoined    = "game-joined"
	EventPlayerJoined  = "player-joined"
	EventScoreUpdated  = "score-updated"
	EventGameStarted   = "game-started"
	EventLevelChanged  = "level-changed"
	EventGameFinished  = "game-finished"
	EventLevelDataSave = "level-data-saved"
	EventNewMessage    = "new-message"
)

// codeRetryLimit bounds join-code regeneration on persist conflicts.
const codeRetryLimit = 10

// Coordinator orchestrates game state transitions: it validates against
// repository state, applies the durable write, refreshes the session
// registry, and only then broadcasts. That ordering keeps clients from
// observing state that is not yet committed.
type Coordinator struct {
	repo     Repository
	registry *Registry
	hub      Broadcaster
}

func NewCoordinator(repo Repository, registry *Registry, hub Broadcaster) *Coordinator {
	return &Coordinator{repo: repo, registry: registry, hub: hub}
}

// ScoreUpdate reports the outcome of a score mutation.
type ScoreUpdate struct {
	TeamID   uint
	Score    int
	Change   int
	JoinCode string
}

// CreateGame persists a new game with its teams and registers the session.
// Nothing is broadcast; no one is in the room yet.
func (c *Coordinator) CreateGame(ctx context.Context, rawSettings json.RawMessage) (*Game, error) {
	settings, err := ParseSettings(rawSettings)
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < codeRetryLimit; attempt++ {
		g := &Game{
			JoinCode: NewJoinCode(),
			Status:   StatusWaiting,
			Settings: rawSettings,
		}
		for i := 0; i < settings.TeamCount; i++ {
			g.Teams = append(g.Teams, Team{Name: settings.TeamName(i), Score: InitialTeamScore})
		}
		err := c.repo.CreateGame(ctx, g)
		if errors.Is(err, ErrCodeConflict) {
			log.Warnf("join code collision on %s, retrying", g.JoinCode)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create game: %w", err)
		}
		c.registry.Register(g.JoinCode, SessionFromGame(g))
		log.Infof("game created id=%d code=%s teams=%d", g.ID, g.JoinCode, len(g.Teams))
		return g, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// JoinGame binds a player to the game and team behind code and puts the
// connection into both rooms. The joiner receives its own snapshot (already
// containing the new player) before the room-wide roster notification goes
// out.
func (c *Coordinator) JoinGame(ctx context.Context, code, name string, teamID uint, role string, conn rooms.Conn) (*Game, *Player, error) {
	g, err := c.repo.GameByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := g.FindTeam(teamID); !ok {
		return nil, nil, ErrInvalidTeam
	}
	player := &Player{
		GameID:   g.ID,
		TeamID:   &teamID,
		Name:     name,
		Role:     role,
		ConnID:   conn.ID(),
		Active:   true,
		JoinedAt: time.Now().UTC(),
	}
	if err := c.repo.CreatePlayer(ctx, player); err != nil {
		return nil, nil, fmt.Errorf("join game: %w", err)
	}
	g.Players = append(g.Players, *player)
	c.registry.Register(code, SessionFromGame(g))

	c.hub.JoinGameRoom(code, conn)
	c.hub.JoinTeamRoom(teamID, conn)
	c.hub.SendTo(conn, EventGameJoined, SnapshotPayload(g))
	c.hub.BroadcastToGame(code, EventPlayerJoined, map[string]any{
		"name":   player.Name,
		"teamId": teamID,
		"role":   player.Role,
	})
	log.Infof("player joined game=%s player=%s team=%d", code, name, teamID)
	return g, player, nil
}

// UpdateScore applies the delta atomically at the storage layer and notifies
// the owning game's room. Concurrent updates on the same team never lose a
// change.
func (c *Coordinator) UpdateScore(ctx context.Context, teamID uint, points int) (*ScoreUpdate, error) {
	team, err := c.repo.TeamByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	g, err := c.repo.GameByID(ctx, team.GameID)
	if err != nil {
		return nil, err
	}
	newScore, err := c.repo.AddScore(ctx, teamID, points)
	if err != nil {
		return nil, fmt.Errorf("update score: %w", err)
	}
	c.registry.Update(g.JoinCode, func(session *Session) {
		for i := range session.Teams {
			if session.Teams[i].ID == teamID {
				session.Teams[i].Score = newScore
			}
		}
	})
	c.hub.BroadcastToGame(g.JoinCode, EventScoreUpdated, map[string]any{
		"teamId": teamID,
		"score":  newScore,
		"change": points,
	})
	return &ScoreUpdate{TeamID: teamID, Score: newScore, Change: points, JoinCode: g.JoinCode}, nil
}

// StartGame transitions waiting -> playing at level 1.
func (c *Coordinator) StartGame(ctx context.Context, code string) (int, error) {
	g, err := c.repo.GameByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	if g.Status != StatusWaiting {
		return 0, fmt.Errorf("%w: cannot start a %s game", ErrInvalidTransition, g.Status)
	}
	if err := c.repo.SetGameState(ctx, g.ID, StatusPlaying, 1); err != nil {
		return 0, fmt.Errorf("start game: %w", err)
	}
	c.registry.Update(code, func(session *Session) {
		session.Status = StatusPlaying
		session.CurrentLevel = 1
	})
	c.hub.BroadcastToGame(code, EventGameStarted, map[string]any{"level": 1})
	log.Infof("game started code=%s", code)
	return 1, nil
}

// AdvanceLevel bumps the current level by one. Levels never decrease.
func (c *Coordinator) AdvanceLevel(ctx context.Context, code string) (int, error) {
	g, err := c.repo.GameByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	if g.Status != StatusPlaying {
		return 0, fmt.Errorf("%w: game is %s", ErrInvalidTransition, g.Status)
	}
	level := g.CurrentLevel + 1
	if err := c.repo.SetGameState(ctx, g.ID, StatusPlaying, level); err != nil {
		return 0, fmt.Errorf("advance level: %w", err)
	}
	c.registry.Update(code, func(session *Session) {
		session.CurrentLevel = level
	})
	c.hub.BroadcastToGame(code, EventLevelChanged, map[string]any{"level": level})
	log.Infof("level advanced code=%s level=%d", code, level)
	return level, nil
}

// FinishGame transitions playing -> finished and removes the session from
// the registry; the durable record stays.
func (c *Coordinator) FinishGame(ctx context.Context, code string) error {
	g, err := c.repo.GameByCode(ctx, code)
	if err != nil {
		return err
	}
	if g.Status != StatusPlaying {
		return fmt.Errorf("%w: cannot finish a %s game", ErrInvalidTransition, g.Status)
	}
	if err := c.repo.SetGameState(ctx, g.ID, StatusFinished, g.CurrentLevel); err != nil {
		return fmt.Errorf("finish game: %w", err)
	}
	c.registry.Update(code, func(session *Session) {
		session.Status = StatusFinished
	})
	c.hub.BroadcastToGame(code, EventGameFinished, map[string]any{})
	c.registry.Remove(code)
	log.Infof("game finished code=%s", code)
	return nil
}

// SaveLevelData stores the payload into the team's level slot and notifies
// that team's room only.
func (c *Coordinator) SaveLevelData(ctx context.Context, teamID uint, level int, data json.RawMessage) error {
	if level < 1 || level > MaxLevelSlots {
		return fmt.Errorf("%w: level must be between 1 and %d", ErrInvalidLevel, MaxLevelSlots)
	}
	if _, err := c.repo.TeamByID(ctx, teamID); err != nil {
		return err
	}
	if err := c.repo.SaveLevelData(ctx, teamID, level, data); err != nil {
		return fmt.Errorf("save level data: %w", err)
	}
	c.hub.BroadcastToTeam(teamID, EventLevelDataSave, map[string]any{
		"level": level,
		"data":  data,
	})
	return nil
}

// SendMessage appends a chat message and notifies the team room. The
// timestamp is assigned here, at broadcast time.
func (c *Coordinator) SendMessage(ctx context.Context, teamID uint, playerName, text string) (*Message, error) {
	if _, err := c.repo.TeamByID(ctx, teamID); err != nil {
		return nil, err
	}
	message := &Message{
		TeamID:     teamID,
		PlayerName: playerName,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.repo.CreateMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	c.hub.BroadcastToTeam(teamID, EventNewMessage, map[string]any{
		"playerName": message.PlayerName,
		"message":    message.Text,
		"timestamp":  message.CreatedAt,
	})
	return message, nil
}

// Leave handles a disconnect: room memberships go first, synchronously, then
// the matching players are deactivated and pruned from the registry roster.
func (c *Coordinator) Leave(ctx context.Context, conn rooms.Conn) {
	c.hub.LeaveAll(conn)
	players, err := c.repo.DeactivatePlayersByConn(ctx, conn.ID())
	if err != nil {
		log.Errorf("deactivate players for conn %s: %v", conn.ID(), err)
		return
	}
	for _, player := range players {
		g, err := c.repo.GameByID(ctx, player.GameID)
		if err != nil {
			continue
		}
		playerID := player.ID
		c.registry.Update(g.JoinCode, func(session *Session) {
			kept := session.Players[:0]
			for _, view := range session.Players {
				if view.ID != playerID {
					kept = append(kept, view)
				}
			}
			session.Players = kept
		})
		log.Infof("player left game=%s player=%s", g.JoinCode, player.Name)
	}
}

// Snapshot returns a fresh durable read and refreshes the registry mirror.
func (c *Coordinator) Snapshot(ctx context.Context, code string) (*Game, error) {
	g, err := c.repo.GameByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	c.registry.Register(code, SessionFromGame(g))
	return g, nil
}

// Resolve returns the session mirror for the code, lazily repopulating it
// from the repository after a restart.
func (c *Coordinator) Resolve(ctx context.Context, code string) (*Session, error) {
	return c.registry.GetOrLoad(ctx, code, func(ctx context.Context) (*Session, error) {
		g, err := c.repo.GameByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		return SessionFromGame(g), nil
	})
}

// Ping reports repository reachability for the health endpoint.
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.repo.Ping(ctx)
}
