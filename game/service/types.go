package service

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/wricardo/boardgame-relay/game/registry"
	"github.com/wricardo/boardgame-relay/game/state"
)

// CreateGameRequest accepts either a bare name string or {"playerName": "..."}
type CreateGameRequest struct {
	PlayerName string `json:"playerName"`
}

func (r *CreateGameRequest) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.PlayerName)
	}
	type plain CreateGameRequest
	return json.Unmarshal(data, (*plain)(r))
}

type JoinGameRequest struct {
	GameID     string `json:"gameId"`
	PlayerName string `json:"playerName"`
}

type UpdateRequest struct {
	GameID    string          `json:"gameId"`
	GameState json.RawMessage `json:"gameState"`
}

// GameRequest is the payload of every event that only names a room
type GameRequest struct {
	GameID string `json:"gameId"`
}

type WinRequest struct {
	GameID       string       `json:"gameId"`
	WinningColor *state.Color `json:"winningColor"`
}

type RegisterRequest struct {
	PlayerName string `json:"playerName"`
	Username   string `json:"username"`
}

// Name returns whichever of the two accepted fields is set
func (r RegisterRequest) Name() string {
	if strings.TrimSpace(r.PlayerName) != "" {
		return r.PlayerName
	}
	return r.Username
}

type ChallengeRequest struct {
	TargetID string `json:"targetId"`
}

type ChallengeResponseRequest struct {
	ChallengerID string `json:"challengerId"`
	Accepted     bool   `json:"accepted"`
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

func normalizeCode(code string) string {
	return registry.Normalize(code)
}
