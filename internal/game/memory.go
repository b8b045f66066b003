package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryRepository is a mutex-guarded Repository used when no database is
// configured, and by tests. Score increments are applied under the lock, so
// the atomic-increment contract holds.
type MemoryRepository struct {
	mu           sync.Mutex
	nextGameID   uint
	nextTeamID   uint
	nextPlayerID uint
	nextMsgID    uint
	games        map[uint]*Game
	byCode       map[string]uint
	messages     []Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextGameID:   1,
		nextTeamID:   1,
		nextPlayerID: 1,
		nextMsgID:    1,
		games:        make(map[uint]*Game),
		byCode:       make(map[string]uint),
	}
}

func (r *MemoryRepository) CreateGame(_ context.Context, g *Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byCode[g.JoinCode]; exists {
		return fmt.Errorf("create game: %w", ErrCodeConflict)
	}
	g.ID = r.nextGameID
	r.nextGameID++
	for i := range g.Teams {
		g.Teams[i].ID = r.nextTeamID
		g.Teams[i].GameID = g.ID
		r.nextTeamID++
	}
	stored := cloneGame(g)
	r.games[g.ID] = stored
	r.byCode[g.JoinCode] = g.ID
	return nil
}

func (r *MemoryRepository) GameByCode(_ context.Context, code string) (*Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, ErrGameNotFound
	}
	return snapshotGame(r.games[id]), nil
}

func (r *MemoryRepository) GameByID(_ context.Context, id uint) (*Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return snapshotGame(g), nil
}

func (r *MemoryRepository) TeamByID(_ context.Context, id uint) (*Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, _, ok := r.findTeam(id)
	if !ok {
		return nil, ErrTeamNotFound
	}
	copied := cloneTeam(team)
	return &copied, nil
}

func (r *MemoryRepository) AddScore(_ context.Context, teamID uint, points int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, _, ok := r.findTeam(teamID)
	if !ok {
		return 0, ErrTeamNotFound
	}
	team.Score += points
	return team.Score, nil
}

func (r *MemoryRepository) SetGameState(_ context.Context, gameID uint, status string, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	g.Status = status
	g.CurrentLevel = level
	return nil
}

func (r *MemoryRepository) SaveLevelData(_ context.Context, teamID uint, level int, data json.RawMessage) error {
	if level < 1 || level > MaxLevelSlots {
		return ErrInvalidLevel
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	team, _, ok := r.findTeam(teamID)
	if !ok {
		return ErrTeamNotFound
	}
	if team.LevelData == nil {
		team.LevelData = make(map[int]json.RawMessage)
	}
	team.LevelData[level] = append(json.RawMessage(nil), data...)
	return nil
}

func (r *MemoryRepository) CreatePlayer(_ context.Context, p *Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[p.GameID]
	if !ok {
		return ErrGameNotFound
	}
	p.ID = r.nextPlayerID
	r.nextPlayerID++
	g.Players = append(g.Players, *p)
	return nil
}

func (r *MemoryRepository) DeactivatePlayersByConn(_ context.Context, connID string) ([]Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected []Player
	for _, g := range r.games {
		for i := range g.Players {
			player := &g.Players[i]
			if player.Active && player.ConnID == connID {
				player.Active = false
				player.ConnID = ""
				affected = append(affected, *player)
			}
		}
	}
	return affected, nil
}

func (r *MemoryRepository) CreateMessage(_ context.Context, m *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.nextMsgID
	r.nextMsgID++
	r.messages = append(r.messages, *m)
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

// Messages returns the stored messages for a team, oldest first.
func (r *MemoryRepository) Messages(teamID uint) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []Message
	for _, m := range r.messages {
		if m.TeamID == teamID {
			list = append(list, m)
		}
	}
	return list
}

func (r *MemoryRepository) findTeam(teamID uint) (*Team, *Game, bool) {
	for _, g := range r.games {
		for i := range g.Teams {
			if g.Teams[i].ID == teamID {
				return &g.Teams[i], g, true
			}
		}
	}
	return nil, nil, false
}

// snapshotGame clones a stored game keeping only its active players, the
// same view the database reads return.
func snapshotGame(g *Game) *Game {
	copied := cloneGame(g)
	active := copied.Players[:0]
	for _, p := range copied.Players {
		if p.Active {
			active = append(active, p)
		}
	}
	copied.Players = active
	return copied
}

func cloneGame(g *Game) *Game {
	copied := *g
	copied.Settings = append(json.RawMessage(nil), g.Settings...)
	copied.Teams = make([]Team, len(g.Teams))
	for i := range g.Teams {
		copied.Teams[i] = cloneTeam(&g.Teams[i])
	}
	copied.Players = append([]Player(nil), g.Players...)
	return &copied
}

func cloneTeam(t *Team) Team {
	copied := *t
	if t.LevelData != nil {
		copied.LevelData = make(map[int]json.RawMessage, len(t.LevelData))
		for level, data := range t.LevelData {
			copied.LevelData[level] = append(json.RawMessage(nil), data...)
		}
	}
	return copied
}
