package orch

import (
	"context"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

type EventType int

const (
	EventConnect EventType = iota
	EventJoin
	EventLeave
	EventCodeChange
	EventLanguageChange
	EventTyping
	EventCursorChange
	EventDisconnect
	EventMediaReady
	EventMediaTrack
	EventMediaClosed
	EventMute
	eventQuery
)

var eventNames = [...]string{
	EventConnect:        "connect",
	EventJoin:           "join",
	EventLeave:          "leave",
	EventCodeChange:     "code_change",
	EventLanguageChange: "language_change",
	EventTyping:         "typing",
	EventCursorChange:   "cursor_change",
	EventDisconnect:     "disconnect",
	EventMediaReady:     "media_ready",
	EventMediaTrack:     "media_track",
	EventMediaClosed:    "media_closed",
	EventMute:           "mute",
	eventQuery:          "query",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[t]
}

// Event is one unit of work for the orchestrator loop.
// Only the fields relevant to Type are set.
type Event struct {
	Type EventType
	SID  core.SessionID

	// Room is the raw room id as sent by the client. Optional on change events.
	Room        string
	DisplayName string
	Agenda      string
	Code        string
	Language    string
	Position    json.RawMessage

	// connect
	Signal      core.SignalConnection
	ClientToken string

	// media
	Media    core.MediaConnection
	Track    *webrtc.TrackRemote
	TrackCtx context.Context

	// mute
	Target core.SessionID
	Muted  bool

	query func()
}
