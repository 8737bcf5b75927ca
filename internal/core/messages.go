package core

import (
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/goccy/go-json"
)

// Outbound frame types.
const (
	MsgWelcome          = "welcome"
	MsgPresence         = "presence"
	MsgMemberJoined     = "member_joined"
	MsgMemberLeft       = "member_left"
	MsgCodeSnapshot     = "code_snapshot"
	MsgLanguageSnapshot = "language_snapshot"
	MsgCodeUpdate       = "code_update"
	MsgLanguageUpdate   = "language_update"
	MsgTyping           = "typing"
	MsgCursor           = "cursor"
	MsgLeft             = "left"
	MsgPong             = "pong"
	MsgError            = "error"
	MsgOffer            = "offer"
	MsgAnswer           = "answer"
	MsgCandidate        = "candidate"
)

// Error codes carried by MsgError frames.
const (
	ErrCodeBadPayload      = "bad_payload"
	ErrCodeUnknownType     = "unknown_type"
	ErrCodeInvalidRoom     = "invalid_room"
	ErrCodeInvalidName     = "invalid_name"
	ErrCodeInvalidLanguage = "invalid_language"
	ErrCodeInvalidAgenda   = "invalid_agenda"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeMediaFailed     = "media_failed"
)

type WelcomeMsg struct {
	Type         string    `json:"type"`
	ConnectionID SessionID `json:"connection_id"`
}

type PresenceMsg struct {
	Type    string        `json:"type"`
	Room    domain.RoomID `json:"room"`
	Agenda  string        `json:"agenda,omitempty"`
	Members []MemberDTO   `json:"members"`
	Count   int           `json:"count"`
}

func NewPresenceMsg(room *RoomState) PresenceMsg {
	members := Snapshot(room)
	return PresenceMsg{Type: MsgPresence, Room: room.ID(), Agenda: room.Agenda(), Members: members, Count: len(members)}
}

// MemberNoticeMsg is sent as member_joined or member_left.
type MemberNoticeMsg struct {
	Type   string        `json:"type"`
	Room   domain.RoomID `json:"room"`
	Member MemberDTO     `json:"member"`
}

type CodeMsg struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
	Code string        `json:"code"`
	From SessionID     `json:"from,omitempty"`
}

type LanguageMsg struct {
	Type     string        `json:"type"`
	Room     domain.RoomID `json:"room"`
	Language string        `json:"language"`
	From     SessionID     `json:"from,omitempty"`
}

type TypingMsg struct {
	Type         string    `json:"type"`
	ConnectionID SessionID `json:"connection_id"`
	Name         string    `json:"name"`
}

type CursorMsg struct {
	Type         string          `json:"type"`
	ConnectionID SessionID       `json:"connection_id"`
	Name         string          `json:"name"`
	Position     json.RawMessage `json:"position"`
}

type LeftMsg struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
}

type ErrorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewErrorMsg(code string) ErrorMsg { return ErrorMsg{Type: MsgError, Error: code} }

type PongMsg struct {
	Type string `json:"type"`
}

// SDPMsg carries an offer or an answer.
type SDPMsg struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type CandidateMsg struct {
	Type          string `json:"type"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
}

func Encode(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
