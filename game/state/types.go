package state

import (
	"encoding/json"
	"fmt"
)

// Color identifies a side of the board
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Valid reports whether c is one of the two sides
func (c Color) Valid() bool {
	return c == White || c == Black
}

// UnmarshalJSON rejects anything that is not "white" or "black"
func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("color must be a string: %w", err)
	}
	if !Color(s).Valid() {
		return fmt.Errorf("unknown color %q", s)
	}
	*c = Color(s)
	return nil
}

// Status is the lifecycle stage of a room's game
type Status string

const (
	Waiting  Status = "waiting"
	Playing  Status = "playing"
	Finished Status = "finished"
)

// UnmarshalJSON rejects unknown statuses
func (s *Status) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	switch Status(v) {
	case Waiting, Playing, Finished:
		*s = Status(v)
		return nil
	}
	return fmt.Errorf("unknown status %q", v)
}

// Position is a board square
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Piece is a numbered piece standing on the board
type Piece struct {
	Value    int      `json:"value"`
	Color    Color    `json:"color"`
	Position Position `json:"position"`
}

// LastMove describes the most recent piece displacement
type LastMove struct {
	PieceValue int      `json:"pieceValue"`
	PieceColor Color    `json:"pieceColor"`
	From       Position `json:"from"`
	To         Position `json:"to"`
}

// GameState is the authoritative snapshot a room holds and relays
type GameState struct {
	BoardPieces    []Piece   `json:"boardPieces"`
	IsWhiteTurn    bool      `json:"isWhiteTurn"`
	Status         Status    `json:"status"`
	WhiteStorage   []int     `json:"whiteStorage"`
	BlackStorage   []int     `json:"blackStorage"`
	LastMove       *LastMove `json:"lastMove"`
	Winner         *Color    `json:"winner"`
	WhiteResources *int      `json:"whiteResources,omitempty"`
	BlackResources *int      `json:"blackResources,omitempty"`
	Vibration      *bool     `json:"vibration,omitempty"`
}

// TurnColor returns the side expected to move next
func (g *GameState) TurnColor() Color {
	if g.IsWhiteTurn {
		return White
	}
	return Black
}

// Clone returns a deep copy safe to hand to another goroutine
func (g *GameState) Clone() *GameState {
	if g == nil {
		return nil
	}
	out := *g
	if g.BoardPieces != nil {
		out.BoardPieces = make([]Piece, len(g.BoardPieces))
		copy(out.BoardPieces, g.BoardPieces)
	}
	out.WhiteStorage = cloneInts(g.WhiteStorage)
	out.BlackStorage = cloneInts(g.BlackStorage)
	if g.LastMove != nil {
		lm := *g.LastMove
		out.LastMove = &lm
	}
	if g.Winner != nil {
		w := *g.Winner
		out.Winner = &w
	}
	if g.WhiteResources != nil {
		v := *g.WhiteResources
		out.WhiteResources = &v
	}
	if g.BlackResources != nil {
		v := *g.BlackResources
		out.BlackResources = &v
	}
	if g.Vibration != nil {
		v := *g.Vibration
		out.Vibration = &v
	}
	return &out
}

func cloneInts(src []int) []int {
	if src == nil {
		return nil
	}
	out := make([]int, len(src))
	copy(out, src)
	return out
}
