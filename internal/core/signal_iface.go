package core

import "github.com/dkeye/CodeRoom/internal/domain"

// Frame is a raw encoded payload.
type Frame []byte

// SessionID is the per-connection identity used as a membership key.
type SessionID = domain.ConnectionID

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend never blocks. A full buffer is reported as an error.
	TrySend(Frame) error
	Close()
}
