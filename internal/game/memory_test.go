package game

import (
	"context"
	"testing"
	"time"
)

func TestMemoryReadsExcludeInactivePlayers(t *testing.T) {
	repo := NewMemoryRepository()
	g := &Game{JoinCode: "ABCDEF", Status: StatusWaiting, Settings: []byte(`{"teamCount":1}`)}
	g.Teams = []Team{{Name: "Team 1", Score: InitialTeamScore}}
	if err := repo.CreateGame(context.Background(), g); err != nil {
		t.Fatalf("create game: %v", err)
	}
	teamID := g.Teams[0].ID
	for _, p := range []*Player{
		{GameID: g.ID, TeamID: &teamID, Name: "Ada", ConnID: "c1", Active: true, JoinedAt: time.Now()},
		{GameID: g.ID, TeamID: &teamID, Name: "Bob", ConnID: "c2", Active: true, JoinedAt: time.Now()},
	} {
		if err := repo.CreatePlayer(context.Background(), p); err != nil {
			t.Fatalf("create player: %v", err)
		}
	}
	if _, err := repo.DeactivatePlayersByConn(context.Background(), "c2"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	byCode, err := repo.GameByCode(context.Background(), "ABCDEF")
	if err != nil {
		t.Fatalf("game by code: %v", err)
	}
	byID, err := repo.GameByID(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("game by id: %v", err)
	}
	for _, read := range []*Game{byCode, byID} {
		if len(read.Players) != 1 {
			t.Fatalf("expected only the active player, got %+v", read.Players)
		}
		if read.Players[0].Name != "Ada" {
			t.Fatalf("wrong player survived the read: %+v", read.Players[0])
		}
	}
}
