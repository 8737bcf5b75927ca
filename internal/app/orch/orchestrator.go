package orch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/CodeRoom/internal/app"
	"github.com/dkeye/CodeRoom/internal/app/sfu"
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("orchestrator stopped")

const DefaultQueueSize = 1024

// Orchestrator is the single writer of room and session state.
// Every event runs to completion on the Run goroutine, so the
// registries it owns need no locks.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomRegistry
	Policy   app.Policy
	Relays   *sfu.RelayManager
	Out      *app.Broadcaster
	Now      func() time.Time

	events    chan Event
	done      chan struct{}
	stopOnce  sync.Once
	processed atomic.Uint64
}

func New(reg *app.Registry, rooms *app.RoomRegistry, policy app.Policy, relays *sfu.RelayManager, queueSize int) *Orchestrator {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		Relays:   relays,
		Out:      app.NewBroadcaster(reg),
		Now:      time.Now,
		events:   make(chan Event, queueSize),
		done:     make(chan struct{}),
	}
}

// Run consumes events until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().Str("module", "orch").Int("queue", cap(o.events)).Msg("orchestrator loop started")
	defer o.stopOnce.Do(func() { close(o.done) })
	for {
		select {
		case <-ctx.Done():
			if o.Relays != nil {
				o.Relays.StopAll()
			}
			log.Info().Str("module", "orch").Uint64("processed", o.processed.Load()).Msg("orchestrator loop stopped")
			return nil
		case ev := <-o.events:
			o.Dispatch(ev)
		}
	}
}

// Submit queues ev. Events from one caller are processed in submit order.
func (o *Orchestrator) Submit(ctx context.Context, ev Event) error {
	select {
	case <-o.done:
		return ErrStopped
	default:
	}
	select {
	case o.events <- ev:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch handles ev synchronously. Only the Run goroutine may call it
// once Run has started.
func (o *Orchestrator) Dispatch(ev Event) {
	if ev.Type == eventQuery {
		ev.query()
		return
	}
	o.processed.Add(1)
	metrics.EventsTotal.WithLabelValues(ev.Type.String()).Inc()

	switch ev.Type {
	case EventConnect:
		o.connect(ev)
		return
	case EventDisconnect:
		o.disconnect(ev.SID)
		return
	}

	sess, ok := o.Registry.GetSession(ev.SID)
	if !ok || sess.Closing {
		metrics.RejectedEventsTotal.WithLabelValues("unknown_session").Inc()
		log.Debug().Str("module", "orch").Str("sid", string(ev.SID)).Str("event", ev.Type.String()).Msg("event for unknown session dropped")
		return
	}

	switch ev.Type {
	case EventJoin:
		o.join(sess, ev)
	case EventLeave:
		o.leave(sess)
	case EventCodeChange:
		o.codeChange(sess, ev)
	case EventLanguageChange:
		o.languageChange(sess, ev)
	case EventTyping:
		o.typing(sess, ev)
	case EventCursorChange:
		o.cursorChange(sess, ev)
	case EventMediaReady:
		o.mediaReady(sess, ev.Media)
	case EventMediaTrack:
		o.mediaTrack(sess, ev)
	case EventMediaClosed:
		o.mediaClosed(sess, ev.Media)
	case EventMute:
		o.mute(sess, ev.Target, ev.Muted)
	default:
		log.Warn().Str("module", "orch").Int("type", int(ev.Type)).Msg("unknown event")
	}
}

// settle applies the backpressure policy to every connection that missed
// a frame. room is nil for unicasts outside a room.
func (o *Orchestrator) settle(room *core.RoomState, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, sid := range res.Dropped {
		switch o.Policy.OnBackPressure(room, sid) {
		case app.KickMember:
			o.KickBySID(sid)
		case app.MarkSlow, app.DropFrame, app.NoAction:
			log.Debug().Str("module", "orch").Str("sid", string(sid)).Msg("frame dropped")
		}
	}
}

// reject answers a malformed event with an error frame to the sender only.
func (o *Orchestrator) reject(sess *core.Session, code string, err error) {
	metrics.RejectedEventsTotal.WithLabelValues(code).Inc()
	log.Debug().Err(err).Str("module", "orch").Str("sid", string(sess.ID)).Str("code", code).Msg("event rejected")
	o.settle(nil, o.Out.Unicast(sess.ID, core.NewErrorMsg(code)))
}

// query runs fn on the loop and hands its result back on a buffered
// channel, so a caller that gives up early never shares memory with fn.
func query[T any](ctx context.Context, o *Orchestrator, fn func() T) (T, error) {
	var zero T
	res := make(chan T, 1)
	if err := o.Submit(ctx, Event{Type: eventQuery, query: func() { res <- fn() }}); err != nil {
		return zero, err
	}
	select {
	case v := <-res:
		return v, nil
	case <-o.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// ListRooms lists live rooms, read on the loop.
func (o *Orchestrator) ListRooms(ctx context.Context) ([]core.RoomInfo, error) {
	return query(ctx, o, o.Rooms.List)
}

type roomLookup struct {
	detail core.RoomDetail
	ok     bool
}

// RoomDetail reads one room's full state on the loop.
func (o *Orchestrator) RoomDetail(ctx context.Context, id domain.RoomID) (core.RoomDetail, bool, error) {
	res, err := query(ctx, o, func() roomLookup {
		room, ok := o.Rooms.Get(id)
		if !ok {
			return roomLookup{}
		}
		return roomLookup{detail: room.Detail(), ok: true}
	})
	return res.detail, res.ok, err
}

type Stats struct {
	Rooms           int    `json:"rooms"`
	Sessions        int    `json:"sessions"`
	EventsProcessed uint64 `json:"events_processed"`
}

func (o *Orchestrator) Stats(ctx context.Context) (Stats, error) {
	return query(ctx, o, func() Stats {
		return Stats{Rooms: o.Rooms.Len(), Sessions: o.Registry.Count(), EventsProcessed: o.processed.Load()}
	})
}
