package room

import (
	"time"

	"github.com/wricardo/boardgame-relay/game/state"
)

// Session is one player's seat in a room. A session is never reconnected;
// rejoining under the same name replaces it with a new one.
type Session struct {
	ID             string
	Name           string
	Color          state.Color
	Connected      bool
	JoinedAt       time.Time
	DisconnectedAt *time.Time
}

func (s *Session) info() PlayerInfo {
	return PlayerInfo{Name: s.Name, Color: s.Color, Connected: s.Connected}
}
