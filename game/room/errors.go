package room

import "errors"

var (
	ErrInvalidName  = errors.New("player name is required")
	ErrRoomFull     = errors.New("room is full")
	ErrRoomFinished = errors.New("game has already finished")
	ErrNotInRoom    = errors.New("session is not part of this room")
	ErrInvalidState = errors.New("invalid game state")
	ErrNotYourTurn  = errors.New("not this player's turn")
	ErrNoOpponent   = errors.New("no opponent in room")
)
