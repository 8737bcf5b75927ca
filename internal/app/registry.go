package app

import (
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Registry holds every live session keyed by connection id.
// Not safe for concurrent use; the orchestrator loop owns it.
type Registry struct {
	sessions map[core.SessionID]*core.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*core.Session)}
}

// BindSignal registers a freshly accepted connection. It reports false if
// the id is already bound.
func (r *Registry) BindSignal(sess *core.Session) bool {
	if _, ok := r.sessions[sess.ID]; ok {
		return false
	}
	r.sessions[sess.ID] = sess
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID)).Str("client", sess.ClientToken).Msg("bound signal")
	return true
}

func (r *Registry) GetSession(sid core.SessionID) (*core.Session, bool) {
	s, ok := r.sessions[sid]
	return s, ok
}

func (r *Registry) Unbind(sid core.SessionID) {
	if _, ok := r.sessions[sid]; !ok {
		return
	}
	delete(r.sessions, sid)
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, *core.Session, bool) {
	s, ok := r.sessions[sid]
	if !ok || !s.InRoom() {
		return "", nil, false
	}
	return s.Room, s, true
}

func (r *Registry) UpdateRoom(sid core.SessionID, room domain.RoomID) bool {
	s, ok := r.sessions[sid]
	if !ok {
		return false
	}
	s.Room = room
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("updated room")
	return true
}

func (r *Registry) RemoveRoom(sid core.SessionID) {
	if s, ok := r.sessions[sid]; ok {
		s.Room = ""
		log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed room association")
	}
}

func (r *Registry) UpdateUsername(sid core.SessionID, name string) {
	if s, ok := r.sessions[sid]; ok {
		s.DisplayName = name
	}
}

func (r *Registry) Count() int { return len(r.sessions) }
