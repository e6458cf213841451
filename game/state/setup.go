package state

import (
	"fmt"
	"math/rand/v2"
)

const (
	MinBoardSize = 4
	MaxBoardSize = 16
)

// Setup describes how a fresh game is laid out. Each side receives one piece
// per entry in Values, shuffled, filling its home rows from the board edge.
type Setup struct {
	BoardSize int   `mapstructure:"board_size" json:"board_size"`
	Values    []int `mapstructure:"values" json:"values"`
}

// DefaultSetup is an 8x8 board with sixteen pieces a side numbered 1..16
func DefaultSetup() Setup {
	values := make([]int, 16)
	for i := range values {
		values[i] = i + 1
	}
	return Setup{BoardSize: 8, Values: values}
}

// Validate checks that the layout fits on the board
func (s Setup) Validate() error {
	if s.BoardSize < MinBoardSize || s.BoardSize > MaxBoardSize {
		return fmt.Errorf("setup validation: board_size must be between %d and %d, got %d", MinBoardSize, MaxBoardSize, s.BoardSize)
	}
	if len(s.Values) == 0 {
		return fmt.Errorf("setup validation: values must not be empty")
	}
	if half := s.BoardSize * s.BoardSize / 2; len(s.Values) > half {
		return fmt.Errorf("setup validation: %d values do not fit in half of a %dx%d board", len(s.Values), s.BoardSize, s.BoardSize)
	}
	return nil
}

// NewGame builds a fresh randomized state with White to move. r may be nil to
// use the package-level source.
func (s Setup) NewGame(r *rand.Rand, status Status) *GameState {
	pieces := make([]Piece, 0, 2*len(s.Values))
	pieces = append(pieces, s.place(Black, r)...)
	pieces = append(pieces, s.place(White, r)...)
	return &GameState{
		BoardPieces:  pieces,
		IsWhiteTurn:  true,
		Status:       status,
		WhiteStorage: []int{},
		BlackStorage: []int{},
	}
}

func (s Setup) place(color Color, r *rand.Rand) []Piece {
	values := append([]int(nil), s.Values...)
	swap := func(i, j int) { values[i], values[j] = values[j], values[i] }
	if r != nil {
		r.Shuffle(len(values), swap)
	} else {
		rand.Shuffle(len(values), swap)
	}

	out := make([]Piece, len(values))
	for i, v := range values {
		row := i / s.BoardSize
		if color == White {
			row = s.BoardSize - 1 - row
		}
		out[i] = Piece{
			Value:    v,
			Color:    color,
			Position: Position{Row: row, Col: i % s.BoardSize},
		}
	}
	return out
}
