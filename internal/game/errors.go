package game

import "errors"

var (
	ErrGameNotFound       = errors.New("game not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrInvalidSettings    = errors.New("invalid settings")
	ErrInvalidTeam        = errors.New("team does not belong to game")
	ErrInvalidLevel       = errors.New("invalid level")
	ErrInvalidTransition  = errors.New("invalid game state transition")
	ErrCodeConflict       = errors.New("join code already in use")
	ErrCodeSpaceExhausted = errors.New("join code space exhausted")
	ErrCorruptPayload     = errors.New("corrupt stored payload")
)
