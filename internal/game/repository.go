package game

import (
	"context"
	"encoding/json"
)

// Repository is the durable store for games, teams, players and messages.
// Reads return fully materialized snapshots; the coordinator owns any
// ordering between operations.
type Repository interface {
	// CreateGame persists the game together with its teams in one atomic
	// operation. A join-code uniqueness violation surfaces as ErrCodeConflict.
	CreateGame(ctx context.Context, g *Game) error
	// GameByCode returns the game with its teams and active players.
	GameByCode(ctx context.Context, code string) (*Game, error)
	GameByID(ctx context.Context, id uint) (*Game, error)
	TeamByID(ctx context.Context, id uint) (*Team, error)
	// AddScore applies the delta as a storage-native atomic increment and
	// returns the resulting score.
	AddScore(ctx context.Context, teamID uint, points int) (int, error)
	SetGameState(ctx context.Context, gameID uint, status string, level int) error
	SaveLevelData(ctx context.Context, teamID uint, level int, data json.RawMessage) error
	CreatePlayer(ctx context.Context, p *Player) error
	// DeactivatePlayersByConn clears the connection handle and marks the
	// matching players inactive, returning the affected rows.
	DeactivatePlayersByConn(ctx context.Context, connID string) ([]Player, error)
	CreateMessage(ctx context.Context, m *Message) error
	Ping(ctx context.Context) error
}
