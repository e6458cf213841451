package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCandidate(t *testing.T) {
	t.Run("valid snapshot", func(t *testing.T) {
		raw := `{
			"boardPieces": [
				{"value": 3, "color": "white", "position": {"row": 6, "col": 0}},
				{"value": 7, "color": "black", "position": {"row": 1, "col": 4}}
			],
			"isWhiteTurn": false,
			"whiteStorage": [2],
			"whiteResources": 4,
			"vibration": true
		}`
		c, err := DecodeCandidate([]byte(raw))
		require.NoError(t, err)

		require.Len(t, c.BoardPieces, 2)
		assert.Equal(t, Piece{Value: 3, Color: White, Position: Position{Row: 6, Col: 0}}, c.BoardPieces[0])
		require.NotNil(t, c.IsWhiteTurn)
		assert.False(t, *c.IsWhiteTurn)
		require.NotNil(t, c.WhiteStorage)
		assert.Equal(t, []int{2}, *c.WhiteStorage)
		assert.Nil(t, c.BlackStorage)
		assert.Equal(t, 4, *c.WhiteResources)
		assert.True(t, *c.Vibration)
		assert.False(t, c.Terminal())
	})

	t.Run("empty board is still an array", func(t *testing.T) {
		c, err := DecodeCandidate([]byte(`{"boardPieces": []}`))
		require.NoError(t, err)
		assert.Empty(t, c.BoardPieces)
	})

	t.Run("terminal snapshot", func(t *testing.T) {
		c, err := DecodeCandidate([]byte(`{"boardPieces": [], "status": "finished", "winner": "black"}`))
		require.NoError(t, err)
		assert.True(t, c.Terminal())
		assert.Equal(t, Black, *c.Winner)
	})

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `{"boardPieces": [`, ErrMalformed},
		{"missing pieces", `{"isWhiteTurn": true}`, ErrMissingPieces},
		{"null pieces", `{"boardPieces": null}`, ErrMissingPieces},
		{"pieces not an array", `{"boardPieces": {"value": 1}}`, ErrMalformed},
		{"piece without value", `{"boardPieces": [{"color": "white", "position": {"row": 0, "col": 0}}]}`, ErrInvalidPiece},
		{"piece without color", `{"boardPieces": [{"value": 1, "position": {"row": 0, "col": 0}}]}`, ErrInvalidPiece},
		{"piece without position", `{"boardPieces": [{"value": 1, "color": "white"}]}`, ErrInvalidPiece},
		{"position without col", `{"boardPieces": [{"value": 1, "color": "white", "position": {"row": 0}}]}`, ErrInvalidPiece},
		{"unknown color", `{"boardPieces": [{"value": 1, "color": "red", "position": {"row": 0, "col": 0}}]}`, ErrMalformed},
		{"fractional value", `{"boardPieces": [{"value": 1.5, "color": "white", "position": {"row": 0, "col": 0}}]}`, ErrMalformed},
		{"resources of wrong type", `{"boardPieces": [], "whiteResources": "lots"}`, ErrMalformed},
		{"vibration of wrong type", `{"boardPieces": [], "vibration": 1}`, ErrMalformed},
		{"unknown status", `{"boardPieces": [], "status": "paused"}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCandidate([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
