package state

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed     = errors.New("malformed state snapshot")
	ErrMissingPieces = errors.New("state snapshot has no boardPieces array")
	ErrInvalidPiece  = errors.New("invalid board piece")
)

type candidatePosition struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

type candidatePiece struct {
	Value    *int               `json:"value"`
	Color    *Color             `json:"color"`
	Position *candidatePosition `json:"position"`
}

// Candidate is a snapshot submitted by a client. Pointer fields are nil when
// the client omitted them, which the reducer treats as "keep the current value".
type Candidate struct {
	BoardPieces    []Piece
	IsWhiteTurn    *bool
	Status         *Status
	WhiteStorage   *[]int
	BlackStorage   *[]int
	LastMove       *LastMove
	Winner         *Color
	WhiteResources *int
	BlackResources *int
	Vibration      *bool
}

// Terminal reports whether the client is announcing the end of the game
func (c *Candidate) Terminal() bool {
	return c.Status != nil && *c.Status == Finished
}

type wireCandidate struct {
	BoardPieces    *[]candidatePiece `json:"boardPieces"`
	IsWhiteTurn    *bool             `json:"isWhiteTurn"`
	Status         *Status           `json:"status"`
	WhiteStorage   *[]int            `json:"whiteStorage"`
	BlackStorage   *[]int            `json:"blackStorage"`
	LastMove       *LastMove         `json:"lastMove"`
	Winner         *Color            `json:"winner"`
	WhiteResources *int              `json:"whiteResources"`
	BlackResources *int              `json:"blackResources"`
	Vibration      *bool             `json:"vibration"`
}

// DecodeCandidate parses and structurally validates a client snapshot.
// Only shape is checked; move legality belongs to the clients.
func DecodeCandidate(raw []byte) (*Candidate, error) {
	var w wireCandidate
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.BoardPieces == nil {
		return nil, ErrMissingPieces
	}

	pieces := make([]Piece, 0, len(*w.BoardPieces))
	for i, p := range *w.BoardPieces {
		switch {
		case p.Value == nil:
			return nil, fmt.Errorf("%w: piece %d has no value", ErrInvalidPiece, i)
		case p.Color == nil:
			return nil, fmt.Errorf("%w: piece %d has no color", ErrInvalidPiece, i)
		case p.Position == nil:
			return nil, fmt.Errorf("%w: piece %d has no position", ErrInvalidPiece, i)
		case p.Position.Row == nil || p.Position.Col == nil:
			return nil, fmt.Errorf("%w: piece %d position needs row and col", ErrInvalidPiece, i)
		}
		pieces = append(pieces, Piece{
			Value:    *p.Value,
			Color:    *p.Color,
			Position: Position{Row: *p.Position.Row, Col: *p.Position.Col},
		})
	}

	return &Candidate{
		BoardPieces:    pieces,
		IsWhiteTurn:    w.IsWhiteTurn,
		Status:         w.Status,
		WhiteStorage:   w.WhiteStorage,
		BlackStorage:   w.BlackStorage,
		LastMove:       w.LastMove,
		Winner:         w.Winner,
		WhiteResources: w.WhiteResources,
		BlackResources: w.BlackResources,
		Vibration:      w.Vibration,
	}, nil
}
