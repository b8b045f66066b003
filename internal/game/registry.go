package game

import (
	"context"
	"encoding/json"
	"sync"
)

// Session is the in-memory mirror of an active game, kept for low-latency
// dispatch. The Repository remains the source of truth; anything here must be
// reconstructable from it.
type Session struct {
	GameID       uint
	JoinCode     string
	Status       string
	CurrentLevel int
	Settings     json.RawMessage
	Teams        []TeamView
	Players      []PlayerView
}

type TeamView struct {
	ID    uint
	Name  string
	Score int
}

type PlayerView struct {
	ID     uint
	Name   string
	Role   string
	TeamID *uint
}

// Registry indexes active games by join code. It starts empty on process
// start; entries are lazily repopulated from the repository on first touch.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Register(code string, session *Session) {
	if session == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[code] = session
}

func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[code]
	if !ok {
		return nil, false
	}
	return session.clone(), true
}

// Update applies a partial mutation under the registry lock. Returns false if
// the code is not registered.
func (r *Registry) Update(code string, mutate func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[code]
	if !ok {
		return false
	}
	mutate(session)
	return true
}

func (r *Registry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, code)
}

// GetOrLoad returns the registered session or repopulates it via load. Loads
// happen outside the lock; a concurrent registration for the same code wins.
func (r *Registry) GetOrLoad(ctx context.Context, code string, load func(context.Context) (*Session, error)) (*Session, error) {
	if session, ok := r.Get(code); ok {
		return session, nil
	}
	session, err := load(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[code]; ok {
		return existing.clone(), nil
	}
	r.sessions[code] = session
	return session.clone(), nil
}

// SessionFromGame builds the registry mirror for a durable snapshot.
func SessionFromGame(g *Game) *Session {
	session := &Session{
		GameID:       g.ID,
		JoinCode:     g.JoinCode,
		Status:       g.Status,
		CurrentLevel: g.CurrentLevel,
		Settings:     g.Settings,
	}
	for _, team := range g.Teams {
		session.Teams = append(session.Teams, TeamView{ID: team.ID, Name: team.Name, Score: team.Score})
	}
	for _, player := range g.Players {
		if !player.Active {
			continue
		}
		session.Players = append(session.Players, PlayerView{
			ID:     player.ID,
			Name:   player.Name,
			Role:   player.Role,
			TeamID: player.TeamID,
		})
	}
	return session
}

// FindTeam reports whether the team belongs to this session.
func (s *Session) FindTeam(teamID uint) (TeamView, bool) {
	for _, team := range s.Teams {
		if team.ID == teamID {
			return team, true
		}
	}
	return TeamView{}, false
}

func (s *Session) clone() *Session {
	copied := *s
	copied.Teams = append([]TeamView(nil), s.Teams...)
	copied.Players = append([]PlayerView(nil), s.Players...)
	return &copied
}
