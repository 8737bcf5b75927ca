package app

import "github.com/dkeye/CodeRoom/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick_member"
	case DropFrame:
		return "drop_frame"
	default:
		return "no_action"
	}
}

// Policy decides what happens to a member whose outbound buffer is full.
type Policy interface {
	OnBackPressure(room *core.RoomState, sid core.SessionID) BackpressureAction
}

// SimplePolicy kicks slow members.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room *core.RoomState, sid core.SessionID) BackpressureAction {
	return KickMember
}

// DropPolicy only drops the frame.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(room *core.RoomState, sid core.SessionID) BackpressureAction {
	return DropFrame
}
