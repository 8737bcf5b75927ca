package core

import (
	"time"

	"github.com/dkeye/CodeRoom/internal/domain"
)

// Session is one physical connection's identity and current room.
// It binds the member meta and its transport endpoints.
type Session struct {
	ID          SessionID
	ClientToken string
	DisplayName string
	Room        domain.RoomID
	ConnectedAt time.Time

	Signal SignalConnection
	Media  MediaConnection

	// Closing is set once the server has kicked the session; the
	// transport disconnect that follows unbinds it.
	Closing bool
}

func NewSession(id SessionID, clientToken string, sig SignalConnection, at time.Time) *Session {
	return &Session{ID: id, ClientToken: clientToken, Signal: sig, ConnectedAt: at}
}

func (s *Session) InRoom() bool { return s.Room != "" }
