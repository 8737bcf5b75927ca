package orch

import (
	"errors"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

var ErrEmptyPosition = errors.New("cursor position missing")

// memberRoom resolves the room a change event applies to. Events from
// sessions in no room, or naming a room other than the current one, are
// discarded without a reply. A missing or malformed room id is rejected.
func (o *Orchestrator) memberRoom(sess *core.Session, ev Event) (*core.RoomState, bool) {
	if !sess.InRoom() {
		metrics.RejectedEventsTotal.WithLabelValues("no_room").Inc()
		log.Debug().Str("module", "orch").Str("sid", string(sess.ID)).Str("event", ev.Type.String()).Msg("change outside a room discarded")
		return nil, false
	}
	id, err := domain.ParseRoomID(ev.Room)
	if err != nil {
		o.reject(sess, core.ErrCodeInvalidRoom, err)
		return nil, false
	}
	if id != sess.Room {
		metrics.RejectedEventsTotal.WithLabelValues("room_mismatch").Inc()
		log.Debug().Str("module", "orch").Str("sid", string(sess.ID)).Str("room", ev.Room).Str("current", string(sess.Room)).Msg("change for another room discarded")
		return nil, false
	}
	room, ok := o.Rooms.Get(sess.Room)
	if !ok {
		log.Error().Str("module", "orch").Str("sid", string(sess.ID)).Str("room", string(sess.Room)).Msg("session room missing from registry")
		o.Registry.RemoveRoom(sess.ID)
		return nil, false
	}
	return room, true
}

// codeChange overwrites the buffer and relays it to everyone but the sender.
func (o *Orchestrator) codeChange(sess *core.Session, ev Event) {
	room, ok := o.memberRoom(sess, ev)
	if !ok {
		return
	}
	room.SetCode(ev.Code)
	res := o.Out.Room(room, sess.ID, core.CodeMsg{
		Type: core.MsgCodeUpdate,
		Room: room.ID(),
		Code: ev.Code,
		From: sess.ID,
	})
	o.settle(room, res)
}

// languageChange is echoed to the sender as well.
func (o *Orchestrator) languageChange(sess *core.Session, ev Event) {
	room, ok := o.memberRoom(sess, ev)
	if !ok {
		return
	}
	lang, err := domain.NormalizeLanguage(ev.Language)
	if err != nil {
		o.reject(sess, core.ErrCodeInvalidLanguage, err)
		return
	}
	room.SetLanguage(lang)
	res := o.Out.Room(room, "", core.LanguageMsg{
		Type:     core.MsgLanguageUpdate,
		Room:     room.ID(),
		Language: lang,
		From:     sess.ID,
	})
	o.settle(room, res)
}

func (o *Orchestrator) typing(sess *core.Session, ev Event) {
	room, ok := o.memberRoom(sess, ev)
	if !ok {
		return
	}
	res := o.Out.Room(room, sess.ID, core.TypingMsg{
		Type:         core.MsgTyping,
		ConnectionID: sess.ID,
		Name:         sess.DisplayName,
	})
	o.settle(room, res)
}

// cursorChange relays an opaque position. Nothing is stored.
func (o *Orchestrator) cursorChange(sess *core.Session, ev Event) {
	room, ok := o.memberRoom(sess, ev)
	if !ok {
		return
	}
	if len(ev.Position) == 0 {
		o.reject(sess, core.ErrCodeBadPayload, ErrEmptyPosition)
		return
	}
	res := o.Out.Room(room, sess.ID, core.CursorMsg{
		Type:         core.MsgCursor,
		ConnectionID: sess.ID,
		Name:         sess.DisplayName,
		Position:     ev.Position,
	})
	o.settle(room, res)
}
