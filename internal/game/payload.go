package game

import "encoding/json"

// SnapshotPayload shapes a durable snapshot for the wire: the game with its
// teams (level-data slots included, still opaque) and the active roster.
func SnapshotPayload(g *Game) map[string]any {
	teams := make([]map[string]any, 0, len(g.Teams))
	for _, team := range g.Teams {
		levelData := make(map[string]json.RawMessage)
		for level, data := range team.LevelData {
			levelData[levelKey(level)] = data
		}
		teams = append(teams, map[string]any{
			"id":        team.ID,
			"name":      team.Name,
			"score":     team.Score,
			"levelData": levelData,
		})
	}
	players := make([]map[string]any, 0, len(g.Players))
	for _, player := range g.Players {
		if !player.Active {
			continue
		}
		players = append(players, map[string]any{
			"id":     player.ID,
			"name":   player.Name,
			"role":   player.Role,
			"teamId": player.TeamID,
		})
	}
	return map[string]any{
		"game": map[string]any{
			"id":           g.ID,
			"code":         g.JoinCode,
			"status":       g.Status,
			"currentLevel": g.CurrentLevel,
			"settings":     g.Settings,
		},
		"teams":   teams,
		"players": players,
	}
}

func levelKey(level int) string {
	switch level {
	case 1:
		return "level1"
	case 2:
		return "level2"
	case 3:
		return "level3"
	default:
		return "unknown"
	}
}
