package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/ResikPresik/manager-battle-backend/internal/game"
)

type createGameRequest struct {
	Settings json.RawMessage `json:"settings"`
}

type scoreRequest struct {
	TeamID uint `json:"teamId"`
	Points int  `json:"points"`
}

type levelDataRequest struct {
	TeamID uint            `json:"teamId"`
	Level  int             `json:"level"`
	Data   json.RawMessage `json:"data"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "settings are required")
		return
	}
	g, err := s.coord.CreateGame(r.Context(), req.Settings)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"code":   g.JoinCode,
		"gameId": g.ID,
	})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	g, err := s.coord.Snapshot(r.Context(), code)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, game.SnapshotPayload(g))
}

func (s *Server) handleUpdateScore(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req scoreRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "teamId and points are required")
		return
	}
	session, err := s.coord.Resolve(r.Context(), code)
	if err != nil {
		writeGameError(w, err)
		return
	}
	if _, ok := session.FindTeam(req.TeamID); !ok {
		writeGameError(w, game.ErrInvalidTeam)
		return
	}
	update, err := s.coord.UpdateScore(r.Context(), req.TeamID, req.Points)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"newScore": update.Score,
	})
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if _, err := s.coord.StartGame(r.Context(), code); err != nil {
		writeGameError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (s *Server) handleNextLevel(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	level, err := s.coord.AdvanceLevel(r.Context(), code)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"level": level,
	})
}

func (s *Server) handleFinishGame(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.coord.FinishGame(r.Context(), code); err != nil {
		writeGameError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (s *Server) handleLevelData(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req levelDataRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "teamId, level and data are required")
		return
	}
	session, err := s.coord.Resolve(r.Context(), code)
	if err != nil {
		writeGameError(w, err)
		return
	}
	if _, ok := session.FindTeam(req.TeamID); !ok {
		writeGameError(w, game.ErrInvalidTeam)
		return
	}
	if err := s.coord.SaveLevelData(r.Context(), req.TeamID, req.Level, req.Data); err != nil {
		writeGameError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	database := "ok"
	status := "ok"
	if err := s.coord.Ping(r.Context()); err != nil {
		log.Errorf("health check: database unreachable: %v", err)
		database = "unreachable"
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"database":  database,
		"websocket": s.hub.ConnCount(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
