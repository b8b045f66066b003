package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ResikPresik/manager-battle-backend/internal/rooms"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []rooms.Event
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, v.(rooms.Event))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type sentEvent struct {
	target  string
	event   string
	payload any
}

// fakeHub records deliveries instead of writing to sockets.
type fakeHub struct {
	mu        sync.Mutex
	gameRooms map[string][]string
	teamRooms map[uint][]string
	sent      []sentEvent
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		gameRooms: make(map[string][]string),
		teamRooms: make(map[uint][]string),
	}
}

func (h *fakeHub) JoinGameRoom(code string, conn rooms.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gameRooms[code] = append(h.gameRooms[code], conn.ID())
}

func (h *fakeHub) JoinTeamRoom(teamID uint, conn rooms.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.teamRooms[teamID] = append(h.teamRooms[teamID], conn.ID())
}

func (h *fakeHub) LeaveAll(conn rooms.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for code, ids := range h.gameRooms {
		h.gameRooms[code] = removeID(ids, conn.ID())
	}
	for teamID, ids := range h.teamRooms {
		h.teamRooms[teamID] = removeID(ids, conn.ID())
	}
}

func (h *fakeHub) BroadcastToGame(code string, event string, payload any) {
	h.record("game:"+code, event, payload)
}

func (h *fakeHub) BroadcastToTeam(teamID uint, event string, payload any) {
	h.record(fmt.Sprintf("team:%d", teamID), event, payload)
}

func (h *fakeHub) SendTo(conn rooms.Conn, event string, payload any) {
	h.record("conn:"+conn.ID(), event, payload)
}

func (h *fakeHub) record(target, event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentEvent{target: target, event: event, payload: payload})
}

func (h *fakeHub) eventsFor(target string) []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var list []sentEvent
	for _, e := range h.sent {
		if e.target == target {
			list = append(list, e)
		}
	}
	return list
}

func removeID(ids []string, id string) []string {
	kept := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func newTestCoordinator(t *testing.T) (*Coordinator, *MemoryRepository, *fakeHub) {
	t.Helper()
	repo := NewMemoryRepository()
	hub := newFakeHub()
	return NewCoordinator(repo, NewRegistry(), hub), repo, hub
}

func mustCreateGame(t *testing.T, coord *Coordinator, teamCount int) *Game {
	t.Helper()
	settings := json.RawMessage(fmt.Sprintf(`{"teamCount":%d}`, teamCount))
	g, err := coord.CreateGame(context.Background(), settings)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return g
}

func TestCreateGameProducesTeams(t *testing.T) {
	coord, _, hub := newTestCoordinator(t)
	g := mustCreateGame(t, coord, 3)

	if len(g.Teams) != 3 {
		t.Fatalf("expected 3 teams, got %d", len(g.Teams))
	}
	for i, team := range g.Teams {
		if team.Score != InitialTeamScore {
			t.Fatalf("team %d started at %d, want %d", i, team.Score, InitialTeamScore)
		}
		if team.ID == 0 {
			t.Fatalf("team %d has no identity", i)
		}
	}
	if len(g.JoinCode) != joinCodeLength {
		t.Fatalf("unexpected join code %q", g.JoinCode)
	}
	if g.Status != StatusWaiting || g.CurrentLevel != 0 {
		t.Fatalf("new game should be waiting at level 0, got %s/%d", g.Status, g.CurrentLevel)
	}
	if len(hub.sent) != 0 {
		t.Fatalf("create must not broadcast, saw %+v", hub.sent)
	}
}

func TestCreateGameUsesTeamNames(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	settings := json.RawMessage(`{"teamCount":2,"teamNames":["Red","Blue"]}`)
	g, err := coord.CreateGame(context.Background(), settings)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if g.Teams[0].Name != "Red" || g.Teams[1].Name != "Blue" {
		t.Fatalf("team names not applied: %q, %q", g.Teams[0].Name, g.Teams[1].Name)
	}
}

func TestCreateGameRejectsBadSettings(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	cases := []json.RawMessage{
		nil,
		json.RawMessage(`{}`),
		json.RawMessage(`{"teamCount":0}`),
		json.RawMessage(`{"teamCount":-2}`),
		json.RawMessage(`not json`),
	}
	for _, settings := range cases {
		if _, err := coord.CreateGame(context.Background(), settings); !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("settings %s: expected ErrInvalidSettings, got %v", settings, err)
		}
	}
}

// conflictRepo forces join-code conflicts for the first n creates.
type conflictRepo struct {
	*MemoryRepository
	conflicts int
}

func (r *conflictRepo) CreateGame(ctx context.Context, g *Game) error {
	if r.conflicts != 0 {
		r.conflicts--
		return ErrCodeConflict
	}
	return r.MemoryRepository.CreateGame(ctx, g)
}

func TestCreateGameRetriesOnCodeConflict(t *testing.T) {
	repo := &conflictRepo{MemoryRepository: NewMemoryRepository(), conflicts: 3}
	coord := NewCoordinator(repo, NewRegistry(), newFakeHub())

	g, err := coord.CreateGame(context.Background(), json.RawMessage(`{"teamCount":1}`))
	if err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if g.JoinCode == "" {
		t.Fatal("expected a join code")
	}
}

func TestCreateGameCodeSpaceExhausted(t *testing.T) {
	repo := &conflictRepo{MemoryRepository: NewMemoryRepository(), conflicts: -1}
	coord := NewCoordinator(repo, NewRegistry(), newFakeHub())

	_, err := coord.CreateGame(context.Background(), json.RawMessage(`{"teamCount":1}`))
	if !errors.Is(err, ErrCodeSpaceExhausted) {
		t.Fatalf("expected ErrCodeSpaceExhausted, got %v", err)
	}
}

func TestJoinGameUnknownCode(t *testing.T) {
	coord, _, hub := newTestCoordinator(t)
	conn := &fakeConn{id: "c1"}

	_, _, err := coord.JoinGame(context.Background(), "NOPE99", "Ada", 1, "leader", conn)
	if !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
	if len(hub.sent) != 0 {
		t.Fatalf("failed join must not broadcast, saw %+v", hub.sent)
	}
}

func TestJoinGameWrongTeam(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	g := mustCreateGame(t, coord, 1)

	_, _, err := coord.JoinGame(context.Background(), g.JoinCode, "Ada", g.Teams[0].ID+99, "member", &fakeConn{id: "c1"})
	if !errors.Is(err, ErrInvalidTeam) {
		t.Fatalf("expected ErrInvalidTeam, got %v", err)
	}
}

func TestJoinGameOrderingAndRooms(t *testing.T) {
	coord, _, hub := newTestCoordinator(t)
	g := mustCreateGame(t, coord, 2)
	conn := &fakeConn{id: "c1"}

	_, player, err := coord.JoinGame(context.Background(), g.JoinCode, "Ada", g.Teams[0].ID, "leader", conn)
	if err != nil {
		t.Fatalf("join game: %v", err)
	}
	if player.ID == 0 || !player.Active {
		t.Fatalf("unexpected player %+v", player)
	}

	self := hub.eventsFor("conn:c1")
	if len(self) != 1 || self[0].event != EventGameJoined {
		t.Fatalf("expected one game-joined to the joiner, got %+v", self)
	}
	snapshot := self[0].payload.(map[string]any)
	roster := snapshot["players"].([]map[string]any)
	found := false
	for _, entry := range roster {
		if entry["name"] == "Ada" {
			found = true
		}
	}
	if !found {
		t.Fatalf("joiner missing from its own snapshot roster: %+v", roster)
	}

	room := hub.eventsFor("game:" + g.JoinCode)
	if len(room) != 1 || room[0].event != EventPlayerJoined {
		t.Fatalf("expected one player-joined to the room, got %+v", room)
	}
	// Snapshot to the joiner precedes the roster notification.
	if hub.sent[0].event != EventGameJoined || hub.sent[1].event != EventPlayerJoined {
		t.Fatalf("wrong delivery order: %+v", hub.sent)
	}

	if len(hub.gameRooms[g.JoinCode]) != 1 || len(hub.teamRooms[g.Teams[0].ID]) != 1 {
		t.Fatalf("connection not joined to both rooms: %+v %+v", hub.gameRooms, hub.teamRooms)
	}
}

func TestUpdateScoreUnknownTeam(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	if _, err := coord.UpdateScore(context.Background(), 42, 10); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("expected ErrTeamNotFound, got %v", err)
	}
}

func TestUpdateScoreBroadcastsToOwningGameOnly(t *testing.T) {
	coord, _, hub := newTestCoordinator(t)
	g1 := mustCreateGame(t, coord, 1)
	g2 := mustCreateGame(t, coord, 1)

	update, err := coord.UpdateScore(context.Background(), g1.Teams[0].ID, 50)
	if err != nil {
		t.Fatalf("update score: %v", err)
	}
	if update.Score != 150 || update.Change != 50 {
		t.Fatalf("unexpected update %+v", update)
	}
	if events := hub.eventsFor("game:" + g1.JoinCode); len(events) != 1 || events[0].event != EventScoreUpdated {
		t.Fatalf("expected score-updated in game 1 room, got %+v", events)
	}
	if events := hub.eventsFor("game:" + g2.JoinCode); len(events) != 0 {
		t.Fatalf("score update leaked into another game: %+v", events)
	}
}

func TestConcurrentScoreUpdatesNeverLoseOne(t *testing.T) {
	coord, repo, _ := newTestCoordinator(t)
	g := mustCreateGame(t, coord, 1)
	teamID := g.Teams[0].ID

	deltas := []int{10, -3, 25, -8, 1, 1, 1, -27, 100, -50}
	var wg sync.WaitGroup
	for _, delta := range deltas {
		wg.Add(1)
		go func(points int) {
			defer wg.Done()
			if _, err := coord.UpdateScore(context.Background(), teamID, points); err != nil {
				t.Errorf("update score: %v", err)
			}
		}(delta)
	}
	wg.Wait()

	want := InitialTeamScore
	for _, delta := range deltas {
		want += delta
	}
	team, err := repo.TeamByID(context.Background(), teamID)
	if err != nil {
		t.Fatalf("team lookup: %v", err)
	}
	if team.Score != want {
		t.Fatalf("lost update: final score %d, want %d", team.Score, want)
	}
}

func TestStartGameTransition(t *testing.T) {
	coord, repo, hub := newTestCoordinator(t)
	g := mustCreateGame(t, coord, 1)

	level, err := coord.StartGame(context.Background(), g.JoinCode)
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	if level != 1 {
		t.Fatalf("expected level 1, got %d", level)
	}
	stored, _ := repo.GameByCode(context.Background(), g.JoinCode)
	if stored.Status != StatusPlaying || stored.CurrentLevel != 1 {
		t.Fatalf("durable state not updated: %s/%d", stored.Status, stored.CurrentLevel)
	}
	if events := hub.eventsFor("game:" + g.JoinCode); len(events) != 1 || events[0].event != EventGameStarted {
		t.Fatalf("expected game-started broadcast, got %+v", events)
	}

	if _, err := coord.StartGame(context.Background(), g.JoinCode); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("starting a playing game must fail, got %v", err)
	}
}

func TestAdvanceLevel(t *testing.T) {
	coord, _, hub := newTestCoordinator(t)
	g := mustCreateGame(t, coord, 1)

	if _, err := coord.AdvanceLevel(context.Background(), g.JoinCode); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advancing a waiting game must fail, got %v", err)
	}
	if _, err := coord.StartGame(context.Background(), g.JoinCode); err != nil {
		t.Fatalf("start game: %v", err)
	}
	level, err := coord.AdvanceLevel(context.Background(), g.JoinCode)
	if err != nil {
		t.Fatalf("advance level: %v", err)
	}
	if level != 2 {
		t.Fatalf("expected level 2, got %d", level)
	}
	events := hub.eventsFor("game:" + g.JoinCode)
	last := events[len(events)-1]
	if last.event != EventLevelChanged {
		t.Fatalf("expected level-changed broadcast, got %+v", last)
	}
}

func TestFinishGame(t *testing.T) {
	coord, repo, hub := newTestCoordinator(t)
	g := mustCreateGame(t, coord, 1)

	if err := coord.FinishGame(context.Background(), g.JoinCode); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("finishing a waiting game must fail, got %v", err)
	}
	if _, err := coord.StartGame(context.Background(), g.JoinCode); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := coord.FinishGame(context.Background(), g.JoinCode); err != nil {
		t.Fatalf("finish game: %v", err)
	}
	stored, _ := repo.GameByCode(context.Background(), g.JoinCode)
	if stored.Status != StatusFinished {
		t.Fatalf("expected finished status, got %s", stored.Status)
	}
	events := hub.eventsFor("game:" + g.JoinCode)
	last := events[len(events)-1]
	if last.event != EventGameFinished {
		t.Fatalf("expected game-finished broadcast, got %+v", last)
	}
}

func TestSaveLevelDataRoundtrip(t *testing.T) {
	coord, _, hub := newTestCoordinator(t)
	g := mustCreateGame(t, coord, 2)
	teamID := g.Teams[0].ID

	data := json.RawMessage(`{"answers":["a","b"],"bonus":{"used":true}}`)
	if err := coord.SaveLevelData(context.Background(), teamID, 2, data); err != nil {
		t.Fatalf("save level data: %v", err)
	}

	snapshot, err := coord.Snapshot(context.Background(), g.JoinCode)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	team, _ := snapshot.FindTeam(teamID)
	var got, want any
	if err := json.Unmarshal(team.LevelData[2], &got); err != nil {
		t.Fatalf("stored payload not json: %v", err)
	}
	if err := json.Unmarshal(data, &want); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
		t.Fatalf("roundtrip mismatch: got %v want %v", got, want)
	}

	if events := hub.eventsFor(fmt.Sprintf("team:%d", teamID)); len(events) != 1 || events[0].event != EventLevelDataSave {
		t.Fatalf("expected level-data-saved in the team room, got %+v", events)
	}
	if events := hub.eventsFor("game:" + g.JoinCode); len(events) != 0 {
		t.Fatalf("level data must not broadcast game-wide: %+v", events)
	}
}

func TestSaveLevelDataRejectsBadLevel(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	g := mustCreateGame(t, coord, 1)
	for _, level := range []int{0, -1, 4, 99} {
		err := coord.SaveLevelData(context.Background(), g.Teams[0].ID, level, json.RawMessage(`{}`))
		if !errors.Is(err, ErrInvalidLevel) {
			t.Fatalf("level %d: expected ErrInvalidLevel, got %v", level, err)
		}
	}
}

func TestSendMessage(t *testing.T) {
	coord, repo, hub := newTestCoordinator(t)
	g := mustCreateGame(t, coord, 1)
	teamID := g.Teams[0].ID

	message, err := coord.SendMessage(context.Background(), teamID, "Ada", "our move")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if message.CreatedAt.IsZero() {
		t.Fatal("expected a timestamp")
	}
	if stored := repo.Messages(teamID); len(stored) != 1 || stored[0].Text != "our move" {
		t.Fatalf("message not persisted: %+v", stored)
	}
	events := hub.eventsFor(fmt.Sprintf("team:%d", teamID))
	if len(events) != 1 || events[0].event != EventNewMessage {
		t.Fatalf("expected new-message in the team room, got %+v", events)
	}
	payload := events[0].payload.(map[string]any)
	if payload["playerName"] != "Ada" || payload["message"] != "our move" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if _, err := coord.SendMessage(context.Background(), 999, "Ada", "hi"); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("expected ErrTeamNotFound, got %v", err)
	}
}

func TestLeaveDeactivatesPlayerAndPrunesRoster(t *testing.T) {
	coord, repo, hub := newTestCoordinator(t)
	g := mustCreateGame(t, coord, 1)
	conn := &fakeConn{id: "c1"}

	_, player, err := coord.JoinGame(context.Background(), g.JoinCode, "Ada", g.Teams[0].ID, "member", conn)
	if err != nil {
		t.Fatalf("join game: %v", err)
	}

	coord.Leave(context.Background(), conn)

	if len(hub.gameRooms[g.JoinCode]) != 0 || len(hub.teamRooms[g.Teams[0].ID]) != 0 {
		t.Fatalf("memberships survive disconnect: %+v %+v", hub.gameRooms, hub.teamRooms)
	}
	stored, _ := repo.GameByID(context.Background(), g.ID)
	for _, p := range stored.Players {
		if p.ID == player.ID {
			t.Fatal("deactivated player still listed in reads")
		}
	}
	session, err := coord.Resolve(context.Background(), g.JoinCode)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(session.Players) != 0 {
		t.Fatalf("roster not pruned: %+v", session.Players)
	}
}

func TestResolveLazilyRepopulates(t *testing.T) {
	repo := NewMemoryRepository()
	hub := newFakeHub()
	coord := NewCoordinator(repo, NewRegistry(), hub)
	g := mustCreateGame(t, coord, 2)

	// Fresh registry simulates a process restart.
	restarted := NewCoordinator(repo, NewRegistry(), hub)
	session, err := restarted.Resolve(context.Background(), g.JoinCode)
	if err != nil {
		t.Fatalf("resolve after restart: %v", err)
	}
	if session.GameID != g.ID || len(session.Teams) != 2 {
		t.Fatalf("repopulated session incomplete: %+v", session)
	}

	if _, err := restarted.Resolve(context.Background(), "NOPE99"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}
