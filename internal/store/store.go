// Package store implements the game.Repository contract on Postgres via GORM.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ResikPresik/manager-battle-backend/internal/db"
	"github.com/ResikPresik/manager-battle-backend/internal/game"
)

type Store struct {
	db *gorm.DB
}

func New(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

func (s *Store) CreateGame(ctx context.Context, g *game.Game) error {
	record := db.Game{
		JoinCode:     g.JoinCode,
		Status:       g.Status,
		CurrentLevel: g.CurrentLevel,
		Settings:     datatypes.JSON(g.Settings),
	}
	for _, team := range g.Teams {
		record.Teams = append(record.Teams, db.Team{
			Name:  team.Name,
			Score: team.Score,
		})
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create game: %w", game.ErrCodeConflict)
		}
		return err
	}
	g.ID = record.ID
	for i := range record.Teams {
		g.Teams[i].ID = record.Teams[i].ID
		g.Teams[i].GameID = record.ID
	}
	return nil
}

func (s *Store) GameByCode(ctx context.Context, code string) (*game.Game, error) {
	var record db.Game
	err := s.db.WithContext(ctx).
		Preload("Teams").
		Preload("Players", "active = ?", true).
		Where("join_code = ?", code).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, game.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomainGame(&record)
}

func (s *Store) GameByID(ctx context.Context, id uint) (*game.Game, error) {
	var record db.Game
	err := s.db.WithContext(ctx).
		Preload("Teams").
		Preload("Players", "active = ?", true).
		First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, game.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomainGame(&record)
}

func (s *Store) TeamByID(ctx context.Context, id uint) (*game.Team, error) {
	var record db.Team
	err := s.db.WithContext(ctx).First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, game.ErrTeamNotFound
	}
	if err != nil {
		return nil, err
	}
	team, err := toDomainTeam(&record)
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// AddScore increments at the storage layer so concurrent updates on the same
// team never lose a change.
func (s *Store) AddScore(ctx context.Context, teamID uint, points int) (int, error) {
	var newScore int
	result := s.db.WithContext(ctx).
		Raw("UPDATE teams SET score = score + ?, updated_at = NOW() WHERE id = ? RETURNING score", points, teamID).
		Scan(&newScore)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, game.ErrTeamNotFound
	}
	return newScore, nil
}

func (s *Store) SetGameState(ctx context.Context, gameID uint, status string, level int) error {
	result := s.db.WithContext(ctx).
		Model(&db.Game{}).
		Where("id = ?", gameID).
		Updates(map[string]any{"status": status, "current_level": level})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return game.ErrGameNotFound
	}
	return nil
}

func (s *Store) SaveLevelData(ctx context.Context, teamID uint, level int, data json.RawMessage) error {
	var column string
	switch level {
	case 1:
		column = "level1_data"
	case 2:
		column = "level2_data"
	case 3:
		column = "level3_data"
	default:
		return game.ErrInvalidLevel
	}
	result := s.db.WithContext(ctx).
		Model(&db.Team{}).
		Where("id = ?", teamID).
		Update(column, datatypes.JSON(data))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return game.ErrTeamNotFound
	}
	return nil
}

func (s *Store) CreatePlayer(ctx context.Context, p *game.Player) error {
	record := db.Player{
		GameID:     p.GameID,
		TeamID:     p.TeamID,
		Name:       p.Name,
		Role:       p.Role,
		ExternalID: p.ExternalID,
		ConnID:     p.ConnID,
		Active:     p.Active,
		JoinedAt:   p.JoinedAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return err
	}
	p.ID = record.ID
	return nil
}

func (s *Store) DeactivatePlayersByConn(ctx context.Context, connID string) ([]game.Player, error) {
	var records []db.Player
	err := s.db.WithContext(ctx).
		Where("conn_id = ? AND active = ?", connID, true).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	ids := make([]uint, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	err = s.db.WithContext(ctx).
		Model(&db.Player{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"active": false, "conn_id": ""}).Error
	if err != nil {
		return nil, err
	}
	players := make([]game.Player, 0, len(records))
	for _, record := range records {
		players = append(players, toDomainPlayer(&record))
	}
	return players, nil
}

func (s *Store) CreateMessage(ctx context.Context, m *game.Message) error {
	record := db.Message{
		TeamID:     m.TeamID,
		PlayerName: m.PlayerName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return err
	}
	m.ID = record.ID
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toDomainGame(record *db.Game) (*game.Game, error) {
	settings := json.RawMessage(record.Settings)
	if len(settings) > 0 && !json.Valid(settings) {
		return nil, fmt.Errorf("%w: game %d settings", game.ErrCorruptPayload, record.ID)
	}
	g := &game.Game{
		ID:           record.ID,
		JoinCode:     record.JoinCode,
		Status:       record.Status,
		CurrentLevel: record.CurrentLevel,
		Settings:     settings,
	}
	for i := range record.Teams {
		team, err := toDomainTeam(&record.Teams[i])
		if err != nil {
			return nil, err
		}
		g.Teams = append(g.Teams, team)
	}
	for i := range record.Players {
		g.Players = append(g.Players, toDomainPlayer(&record.Players[i]))
	}
	return g, nil
}

func toDomainTeam(record *db.Team) (game.Team, error) {
	team := game.Team{
		ID:     record.ID,
		GameID: record.GameID,
		Name:   record.Name,
		Score:  record.Score,
	}
	slots := map[int]datatypes.JSON{
		1: record.Level1Data,
		2: record.Level2Data,
		3: record.Level3Data,
	}
	for level, data := range slots {
		if len(data) == 0 {
			continue
		}
		if !json.Valid(json.RawMessage(data)) {
			return team, fmt.Errorf("%w: team %d level %d data", game.ErrCorruptPayload, record.ID, level)
		}
		if team.LevelData == nil {
			team.LevelData = make(map[int]json.RawMessage)
		}
		team.LevelData[level] = json.RawMessage(data)
	}
	return team, nil
}

func toDomainPlayer(record *db.Player) game.Player {
	return game.Player{
		ID:         record.ID,
		GameID:     record.GameID,
		TeamID:     record.TeamID,
		Name:       record.Name,
		Role:       record.Role,
		ExternalID: record.ExternalID,
		ConnID:     record.ConnID,
		Active:     record.Active,
		JoinedAt:   record.JoinedAt,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
