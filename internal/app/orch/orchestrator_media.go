package orch

import (
	"context"
	"errors"

	"github.com/dkeye/CodeRoom/internal/app/sfu"
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/rs/zerolog/log"
)

// mediaReady attaches a negotiated media connection and subscribes it to
// every speaker already in the room.
func (o *Orchestrator) mediaReady(sess *core.Session, mc core.MediaConnection) {
	if mc == nil {
		return
	}
	if sess.Media != nil && sess.Media != mc {
		o.cleanupMedia(sess)
	}
	sess.Media = mc
	log.Info().Str("module", "orch.media").Str("sid", string(sess.ID)).Msg("media ready")
	if o.Relays == nil {
		return
	}

	room, ok := o.Rooms.Get(sess.Room)
	if !ok {
		return
	}
	for _, sid := range room.MemberIDs() {
		if sid == sess.ID || !o.Relays.HasRelay(sid) {
			continue
		}
		o.subscribe(sid, sess)
	}
}

// mediaTrack starts relaying a new remote track to the rest of the room.
func (o *Orchestrator) mediaTrack(sess *core.Session, ev Event) {
	if o.Relays == nil || ev.Track == nil || sess.Media == nil || sess.Media != ev.Media {
		return
	}
	ctx := ev.TrackCtx
	if ctx == nil {
		ctx = context.Background()
	}
	o.Relays.StartRelay(ctx, sess.ID, ev.Track)

	room, ok := o.Rooms.Get(sess.Room)
	if !ok {
		log.Info().Str("module", "orch.media").Str("sid", string(sess.ID)).Msg("track: no room for sid")
		return
	}
	for _, sid := range room.MemberIDs() {
		if sid == sess.ID {
			continue
		}
		if dst, ok := o.Registry.GetSession(sid); ok && dst.Media != nil {
			o.subscribe(sess.ID, dst)
		}
	}
}

// mediaClosed ignores stale connections already replaced by a newer one.
func (o *Orchestrator) mediaClosed(sess *core.Session, mc core.MediaConnection) {
	if sess.Media == nil || sess.Media != mc {
		return
	}
	o.cleanupMedia(sess)
}

func (o *Orchestrator) subscribe(src core.SessionID, dst *core.Session) {
	if err := o.Relays.Subscribe(src, dst.ID, dst.Media); err != nil {
		if !errors.Is(err, sfu.ErrNoRelay) {
			log.Warn().Err(err).Str("module", "orch.media").Str("src", string(src)).Str("dst", string(dst.ID)).Msg("subscribe")
		}
		return
	}
	o.renegotiate(dst)
}

// renegotiate sends a server offer after tracks were added to dst.
func (o *Orchestrator) renegotiate(dst *core.Session) {
	offer, err := dst.Media.CreateAndSetOffer()
	if err != nil {
		log.Warn().Err(err).Str("module", "orch.media").Str("sid", string(dst.ID)).Msg("create offer")
		return
	}
	o.settle(nil, o.Out.Unicast(dst.ID, core.SDPMsg{Type: core.MsgOffer, SDP: offer.SDP}))
}

// joinMedia wires both directions between sess and the room's speakers.
func (o *Orchestrator) joinMedia(room *core.RoomState, sess *core.Session) {
	if o.Relays == nil {
		return
	}
	for _, sid := range room.MemberIDs() {
		if sid == sess.ID {
			continue
		}
		other, ok := o.Registry.GetSession(sid)
		if !ok {
			continue
		}
		if sess.Media != nil && o.Relays.HasRelay(sid) {
			o.subscribe(sid, sess)
		}
		if other.Media != nil && o.Relays.HasRelay(sess.ID) {
			o.subscribe(sess.ID, other)
		}
	}
}

// leaveMedia cuts sess from the room's relays in both directions.
func (o *Orchestrator) leaveMedia(room *core.RoomState, sess *core.Session) {
	if o.Relays == nil {
		return
	}
	for _, sid := range room.MemberIDs() {
		if sid == sess.ID {
			continue
		}
		o.Relays.MarkSubscriberDelete(sid, sess.ID)
		o.Relays.MarkSubscriberDelete(sess.ID, sid)
	}
}

func (o *Orchestrator) cleanupMedia(sess *core.Session) {
	if o.Relays != nil {
		o.Relays.StopRelay(sess.ID)
		if room, ok := o.Rooms.Get(sess.Room); ok {
			for _, sid := range room.MemberIDs() {
				o.Relays.MarkSubscriberDelete(sid, sess.ID)
			}
		}
	}
	if mc := sess.Media; mc != nil {
		sess.Media = nil
		mc.Close()
	}
}

// mute pauses or resumes target's media toward sess only. Both must share
// a room.
func (o *Orchestrator) mute(sess *core.Session, target core.SessionID, muted bool) {
	if o.Relays == nil || target == sess.ID {
		return
	}
	room, ok := o.Rooms.Get(sess.Room)
	if !ok || !room.HasMember(target) {
		log.Debug().Str("module", "orch.media").Str("sid", string(sess.ID)).Str("target", string(target)).Msg("mute outside room ignored")
		return
	}
	if !o.Relays.SetMuted(target, sess.ID, muted) {
		log.Debug().Str("module", "orch.media").Str("sid", string(sess.ID)).Str("target", string(target)).Msg("mute: no subscription")
	}
}
