package orch

import (
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) connect(ev Event) {
	sess := core.NewSession(ev.SID, ev.ClientToken, ev.Signal, o.Now())
	if !o.Registry.BindSignal(sess) {
		log.Warn().Str("module", "orch").Str("sid", string(ev.SID)).Msg("connect for bound sid ignored")
		return
	}
	o.settle(nil, o.Out.Unicast(sess.ID, core.WelcomeMsg{Type: core.MsgWelcome, ConnectionID: sess.ID}))
}

func (o *Orchestrator) join(sess *core.Session, ev Event) {
	roomID, err := domain.ParseRoomID(ev.Room)
	if err != nil {
		o.reject(sess, core.ErrCodeInvalidRoom, err)
		return
	}
	name, err := domain.NormalizeUsername(ev.DisplayName)
	if err != nil {
		o.reject(sess, core.ErrCodeInvalidName, err)
		return
	}
	agenda, err := domain.NormalizeAgenda(ev.Agenda)
	if err != nil {
		o.reject(sess, core.ErrCodeInvalidAgenda, err)
		return
	}

	if sess.Room == roomID {
		if room, ok := o.Rooms.Get(roomID); ok && room.HasMember(sess.ID) {
			o.rejoin(room, sess, name)
			return
		}
		log.Error().Str("module", "orch").Str("sid", string(sess.ID)).Str("room", string(roomID)).Msg("session points at a room it is not in, resetting")
		o.Registry.RemoveRoom(sess.ID)
	}

	if from, left := o.leaveCurrent(sess); left {
		log.Info().Str("module", "orch").Str("sid", string(sess.ID)).Str("from_room", string(from)).Msg("left previous room")
	}

	room, created := o.Rooms.GetOrCreate(roomID)
	if created {
		room.SetAgenda(agenda)
	}
	member := domain.NewMember(sess.ID, name, o.Now())
	room.AddMember(member)
	o.Registry.UpdateUsername(sess.ID, name)
	o.Registry.UpdateRoom(sess.ID, roomID)
	log.Info().Str("module", "orch").Str("sid", string(sess.ID)).Str("room", string(roomID)).Bool("created", created).Int("members", room.MemberCount()).Msg("joined")

	res := o.Out.Presence(room)
	res.Merge(o.sendSnapshot(room, sess.ID))
	res.Merge(o.Out.Room(room, sess.ID, core.MemberNoticeMsg{
		Type:   core.MsgMemberJoined,
		Room:   roomID,
		Member: memberDTO(member),
	}))

	o.joinMedia(room, sess)
	o.settle(room, res)
}

// rejoin handles a join for the room the session is already in: the name
// is refreshed and the snapshot resent, without a leave.
func (o *Orchestrator) rejoin(room *core.RoomState, sess *core.Session, name string) {
	o.Registry.UpdateUsername(sess.ID, name)
	room.Rename(sess.ID, name)
	res := o.Out.Presence(room)
	res.Merge(o.sendSnapshot(room, sess.ID))
	o.settle(room, res)
}

func (o *Orchestrator) sendSnapshot(room *core.RoomState, sid core.SessionID) core.PublishResult {
	res := o.Out.Unicast(sid, core.CodeMsg{Type: core.MsgCodeSnapshot, Room: room.ID(), Code: room.Code()})
	res.Merge(o.Out.Unicast(sid, core.LanguageMsg{Type: core.MsgLanguageSnapshot, Room: room.ID(), Language: room.Language()}))
	return res
}

func (o *Orchestrator) leave(sess *core.Session) {
	roomID, left := o.leaveCurrent(sess)
	if !left {
		metrics.RejectedEventsTotal.WithLabelValues("no_room").Inc()
		log.Debug().Str("module", "orch").Str("sid", string(sess.ID)).Msg("leave without room absorbed")
		return
	}
	o.settle(nil, o.Out.Unicast(sess.ID, core.LeftMsg{Type: core.MsgLeft, Room: roomID}))
}

// disconnect is the terminal transition. Repeats are no-ops.
func (o *Orchestrator) disconnect(sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Msg("disconnect for unknown session absorbed")
		return
	}
	o.leaveCurrent(sess)
	o.cleanupMedia(sess)
	o.Registry.Unbind(sid)
}

// KickBySID removes a session from its room and closes its transport.
// The transport reports the close as a disconnect, which unbinds it.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok || sess.Closing {
		return
	}
	sess.Closing = true
	metrics.KicksTotal.Inc()
	log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("room", string(sess.Room)).Msg("kicking session")

	o.leaveCurrent(sess)
	o.cleanupMedia(sess)
	if sess.Signal != nil {
		sess.Signal.Close()
	}
}

// leaveCurrent is the one remove-member procedure behind leave, disconnect,
// kick and room switches. It reports false when the session was in no room.
func (o *Orchestrator) leaveCurrent(sess *core.Session) (domain.RoomID, bool) {
	if !sess.InRoom() {
		return "", false
	}
	roomID := sess.Room
	o.Registry.RemoveRoom(sess.ID)

	room, ok := o.Rooms.Get(roomID)
	if !ok {
		log.Error().Str("module", "orch").Str("sid", string(sess.ID)).Str("room", string(roomID)).Msg("session room missing from registry")
		return roomID, true
	}
	o.leaveMedia(room, sess)

	member, ok := room.RemoveMember(sess.ID)
	if !ok {
		log.Error().Str("module", "orch").Str("sid", string(sess.ID)).Str("room", string(roomID)).Msg("session not in its room member list")
	}
	if o.Rooms.RemoveIfEmpty(roomID) {
		return roomID, true
	}

	res := o.Out.Presence(room)
	if ok {
		res.Merge(o.Out.Room(room, "", core.MemberNoticeMsg{
			Type:   core.MsgMemberLeft,
			Room:   roomID,
			Member: memberDTO(member),
		}))
	}
	o.settle(room, res)
	return roomID, true
}

func memberDTO(m domain.Member) core.MemberDTO {
	return core.MemberDTO{ConnectionID: m.ConnectionID, DisplayName: m.DisplayName}
}
