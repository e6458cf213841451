package state

// Field ownership for Merge:
//
//	boardPieces, isWhiteTurn, whiteStorage, blackStorage,
//	whiteResources, blackResources, vibration   client; overwritten when present
//	status                                      relay; a client may only finish the game
//	winner                                      client, and only alongside status=finished
//	lastMove                                    relay diff, then client value, then previous
//
// Anything the candidate leaves out is carried over from old.

// Merge folds an accepted candidate into the authoritative state and returns
// the new state. old is not modified.
func Merge(old *GameState, c *Candidate) *GameState {
	next := old.Clone()

	if c.BoardPieces != nil {
		next.BoardPieces = make([]Piece, len(c.BoardPieces))
		copy(next.BoardPieces, c.BoardPieces)
	}
	if c.IsWhiteTurn != nil {
		next.IsWhiteTurn = *c.IsWhiteTurn
	}
	if c.WhiteStorage != nil {
		next.WhiteStorage = cloneInts(*c.WhiteStorage)
	}
	if c.BlackStorage != nil {
		next.BlackStorage = cloneInts(*c.BlackStorage)
	}
	if c.WhiteResources != nil {
		v := *c.WhiteResources
		next.WhiteResources = &v
	}
	if c.BlackResources != nil {
		v := *c.BlackResources
		next.BlackResources = &v
	}
	if c.Vibration != nil {
		v := *c.Vibration
		next.Vibration = &v
	}

	if c.Terminal() {
		next.Status = Finished
		if c.Winner != nil {
			w := *c.Winner
			next.Winner = &w
		}
	}

	if mv := DetectMove(old.BoardPieces, c.BoardPieces); mv != nil {
		next.LastMove = mv
	} else if c.LastMove != nil {
		lm := *c.LastMove
		next.LastMove = &lm
	}

	return next
}

// DetectMove guesses which piece moved between two boards. A piece counts as
// moved when no piece of the same value and color stands where it stood; its
// destination is the first same-valued piece on a square none of its twins
// occupied before. With several identical pieces the guess can be wrong, and
// nil is returned when nothing matches.
func DetectMove(before, after []Piece) *LastMove {
	type key struct {
		value int
		color Color
	}
	prev := make(map[key]map[Position]bool)
	for _, p := range before {
		k := key{p.Value, p.Color}
		if prev[k] == nil {
			prev[k] = make(map[Position]bool)
		}
		prev[k][p.Position] = true
	}
	next := make(map[key]map[Position]bool)
	for _, p := range after {
		k := key{p.Value, p.Color}
		if next[k] == nil {
			next[k] = make(map[Position]bool)
		}
		next[k][p.Position] = true
	}

	for _, p := range before {
		k := key{p.Value, p.Color}
		if next[k][p.Position] {
			continue
		}
		for _, q := range after {
			if q.Value != p.Value || q.Color != p.Color || prev[k][q.Position] {
				continue
			}
			return &LastMove{
				PieceValue: p.Value,
				PieceColor: p.Color,
				From:       p.Position,
				To:         q.Position,
			}
		}
	}
	return nil
}
