package server

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ResikPresik/manager-battle-backend/internal/config"
	"github.com/ResikPresik/manager-battle-backend/internal/game"
	"github.com/ResikPresik/manager-battle-backend/internal/rooms"
)

func newTestBackend(t *testing.T) (*Server, *game.MemoryRepository) {
	t.Helper()
	repo := game.NewMemoryRepository()
	hub := rooms.NewHub()
	coord := game.NewCoordinator(repo, game.NewRegistry(), hub)
	return New(coord, hub, config.Default()), repo
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp, decodeBody(t, resp)
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func createGame(t *testing.T, baseURL string, teamCount int) string {
	t.Helper()
	resp, body := postJSON(t, baseURL+"/api/game/create", map[string]any{
		"settings": map[string]any{"teamCount": teamCount},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create game: status %d body %v", resp.StatusCode, body)
	}
	code, _ := body["code"].(string)
	if code == "" {
		t.Fatalf("create game returned no code: %v", body)
	}
	return code
}

func teamIDsFromSnapshot(t *testing.T, body map[string]any) []uint {
	t.Helper()
	rawTeams, ok := body["teams"].([]any)
	if !ok {
		t.Fatalf("snapshot has no teams: %v", body)
	}
	ids := make([]uint, 0, len(rawTeams))
	for _, raw := range rawTeams {
		team := raw.(map[string]any)
		ids = append(ids, uint(team["id"].(float64)))
	}
	return ids
}
