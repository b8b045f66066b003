package game

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"
)

const (
	// InitialTeamScore is the score every team starts with.
	InitialTeamScore = 100
	// MaxLevelSlots is the number of per-team level payload slots.
	MaxLevelSlots = 3
)

type Game struct {
	ID           uint
	JoinCode     string
	Status       string
	CurrentLevel int
	Settings     json.RawMessage
	Teams        []Team
	Players      []Player
}

type Team struct {
	ID        uint
	GameID    uint
	Name      string
	Score     int
	LevelData map[int]json.RawMessage
}

type Player struct {
	ID         uint
	GameID     uint
	TeamID     *uint
	Name       string
	Role       string
	ExternalID string
	ConnID     string
	Active     bool
	JoinedAt   time.Time
}

type Message struct {
	ID         uint
	TeamID     uint
	PlayerName string
	Text       string
	CreatedAt  time.Time
}

// Settings carries the fields this core interprets. Everything else in the
// settings payload is opaque game content and passes through untouched.
type Settings struct {
	TeamCount int      `json:"teamCount"`
	TeamNames []string `json:"teamNames,omitempty"`
}

func ParseSettings(raw json.RawMessage) (Settings, error) {
	var settings Settings
	if len(raw) == 0 {
		return settings, fmt.Errorf("%w: empty settings", ErrInvalidSettings)
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return settings, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if settings.TeamCount < 1 {
		return settings, fmt.Errorf("%w: teamCount must be at least 1", ErrInvalidSettings)
	}
	return settings, nil
}

// TeamName resolves the name for the zero-based team index, falling back to a
// numbered default when the settings carry no name for it.
func (s Settings) TeamName(index int) string {
	if index < len(s.TeamNames) && s.TeamNames[index] != "" {
		return s.TeamNames[index]
	}
	return fmt.Sprintf("Team %d", index+1)
}

// FindTeam returns the game's team with the given id, if any.
func (g *Game) FindTeam(teamID uint) (*Team, bool) {
	for i := range g.Teams {
		if g.Teams[i].ID == teamID {
			return &g.Teams[i], true
		}
	}
	return nil, false
}
