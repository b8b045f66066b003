package main

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/ResikPresik/manager-battle-backend/internal/config"
	"github.com/ResikPresik/manager-battle-backend/internal/db"
	"github.com/ResikPresik/manager-battle-backend/internal/game"
	"github.com/ResikPresik/manager-battle-backend/internal/rooms"
	"github.com/ResikPresik/manager-battle-backend/internal/server"
	"github.com/ResikPresik/manager-battle-backend/internal/store"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Warnf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	var repo game.Repository
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		if err := db.Migrate(conn); err != nil {
			log.Fatalf("database migration failed: %v", err)
		}
		repo = store.New(conn)
	} else {
		log.Warn("DATABASE_URL is not set, using in-memory repository")
		repo = game.NewMemoryRepository()
	}

	hub := rooms.NewHub()
	registry := game.NewRegistry()
	coord := game.NewCoordinator(repo, registry, hub)
	srv := server.New(coord, hub, cfg)

	addr := ":" + cfg.Port
	log.Infof("manager-battle-backend listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}
