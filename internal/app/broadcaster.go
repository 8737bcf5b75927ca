package app

import (
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Broadcaster encodes a message once and fans it out to a target set.
type Broadcaster struct {
	Sessions *Registry
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{Sessions: reg}
}

// Unicast sends v to one connection.
func (b *Broadcaster) Unicast(sid core.SessionID, v any) core.PublishResult {
	frame, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Msg("encode")
		return core.PublishResult{}
	}
	return b.send([]core.SessionID{sid}, "", frame)
}

// Room sends v to every member of room except `except`.
// An empty except targets the whole room.
func (b *Broadcaster) Room(room *core.RoomState, except core.SessionID, v any) core.PublishResult {
	frame, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Msg("encode")
		return core.PublishResult{}
	}
	res := b.send(room.MemberIDs(), except, frame)
	log.Debug().Str("module", "app.broadcast").Str("room", string(room.ID())).Str("except", string(except)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// Presence sends the current member list to the whole room.
func (b *Broadcaster) Presence(room *core.RoomState) core.PublishResult {
	return b.Room(room, "", core.NewPresenceMsg(room))
}

func (b *Broadcaster) send(targets []core.SessionID, except core.SessionID, frame core.Frame) core.PublishResult {
	res := core.PublishResult{}
	for _, sid := range targets {
		if sid == except {
			continue
		}
		sess, ok := b.Sessions.GetSession(sid)
		if !ok || sess.Signal == nil {
			continue
		}
		if err := sess.Signal.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, sid)
			metrics.FramesDropped.Inc()
			continue
		}
		res.SendTo++
		metrics.FramesSent.Inc()
	}
	return res
}
