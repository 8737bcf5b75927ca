package app

import (
	"slices"
	"strings"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	DefaultCode     = "// start coding"
	DefaultLanguage = "javascript"
)

// RoomRegistry maps room ids to live rooms.
// A room is present iff it has at least one member.
// Not safe for concurrent use; the orchestrator loop owns it.
type RoomRegistry struct {
	rooms       map[domain.RoomID]*core.RoomState
	defaultCode string
	defaultLang string
}

func NewRoomRegistry(defaultCode, defaultLang string) *RoomRegistry {
	if defaultLang == "" {
		defaultLang = DefaultLanguage
	}
	return &RoomRegistry{
		rooms:       make(map[domain.RoomID]*core.RoomState),
		defaultCode: defaultCode,
		defaultLang: defaultLang,
	}
}

// GetOrCreate returns the room, creating a fresh default document when absent.
// A new room is registered even before its first member is added; callers
// must add one in the same step.
func (f *RoomRegistry) GetOrCreate(id domain.RoomID) (*core.RoomState, bool) {
	if room, ok := f.Get(id); ok {
		return room, false
	}
	room := core.NewRoomState(id, f.defaultCode, f.defaultLang)
	f.rooms[id] = room
	metrics.RoomsActive.Set(float64(len(f.rooms)))
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room, true
}

// Get never returns an empty room. One found here is an invariant
// violation; it is logged and dropped.
func (f *RoomRegistry) Get(id domain.RoomID) (*core.RoomState, bool) {
	room, ok := f.rooms[id]
	if !ok {
		return nil, false
	}
	if room.MemberCount() == 0 {
		log.Error().Str("module", "app.rooms").Str("room", string(id)).Msg("empty room found in registry, removing")
		f.delete(id)
		return nil, false
	}
	return room, true
}

// RemoveIfEmpty drops the room once its last member is gone.
func (f *RoomRegistry) RemoveIfEmpty(id domain.RoomID) bool {
	room, ok := f.rooms[id]
	if !ok || room.MemberCount() > 0 {
		return false
	}
	f.delete(id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room removed")
	return true
}

func (f *RoomRegistry) delete(id domain.RoomID) {
	delete(f.rooms, id)
	metrics.RoomsActive.Set(float64(len(f.rooms)))
}

func (f *RoomRegistry) List() []core.RoomInfo {
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for _, r := range f.rooms {
		if r.MemberCount() == 0 {
			continue
		}
		out = append(out, r.Info())
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return strings.Compare(string(a.Name), string(b.Name)) })
	return out
}

func (f *RoomRegistry) Len() int { return len(f.rooms) }
