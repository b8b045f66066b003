package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/ResikPresik/manager-battle-backend/internal/config"
	"github.com/ResikPresik/manager-battle-backend/internal/game"
	"github.com/ResikPresik/manager-battle-backend/internal/rooms"
)

type Server struct {
	coord *game.Coordinator
	hub   *rooms.Hub
	cfg   config.Config
}

func New(coord *game.Coordinator, hub *rooms.Hub, cfg config.Config) *Server {
	return &Server{coord: coord, hub: hub, cfg: cfg}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/game", func(r chi.Router) {
		r.Use(httprate.LimitByIP(120, time.Minute))
		r.Post("/create", s.handleCreateGame)
		r.Get("/{code}", s.handleGetGame)
		r.Post("/{code}/score", s.handleUpdateScore)
		r.Post("/{code}/start", s.handleStartGame)
		r.Post("/{code}/next-level", s.handleNextLevel)
		r.Post("/{code}/finish", s.handleFinishGame)
		r.Post("/{code}/level-data", s.handleLevelData)
	})
	r.Get("/ws", s.handleWebsocket)
	return r
}
