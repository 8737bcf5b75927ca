package core

import (
	"slices"

	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomState is the shared document of one room.
// It has no lock: only the orchestrator loop touches it.
// It never closes adapter-owned resources.
type RoomState struct {
	id       domain.RoomID
	code     string
	language string
	agenda   string
	members  []domain.Member
}

func NewRoomState(id domain.RoomID, code, language string) *RoomState {
	return &RoomState{id: id, code: code, language: language}
}

func (r *RoomState) ID() domain.RoomID { return r.id }
func (r *RoomState) Code() string      { return r.code }
func (r *RoomState) Language() string  { return r.language }
func (r *RoomState) Agenda() string    { return r.agenda }

// SetCode overwrites the buffer unconditionally. Last writer wins.
func (r *RoomState) SetCode(code string) { r.code = code }

func (r *RoomState) SetLanguage(language string) { r.language = language }

// SetAgenda sets the room title chosen by its creator.
func (r *RoomState) SetAgenda(agenda string) { r.agenda = agenda }

func (r *RoomState) MemberCount() int { return len(r.members) }

func (r *RoomState) indexOf(sid SessionID) int {
	return slices.IndexFunc(r.members, func(m domain.Member) bool { return m.ConnectionID == sid })
}

func (r *RoomState) HasMember(sid SessionID) bool { return r.indexOf(sid) >= 0 }

func (r *RoomState) Member(sid SessionID) (domain.Member, bool) {
	i := r.indexOf(sid)
	if i < 0 {
		return domain.Member{}, false
	}
	return r.members[i], true
}

// AddMember appends m. It returns false if the connection is already a member.
func (r *RoomState) AddMember(m domain.Member) bool {
	if r.HasMember(m.ConnectionID) {
		return false
	}
	r.members = append(r.members, m)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(m.ConnectionID)).Str("name", m.DisplayName).Msg("member added")
	return true
}

// Rename updates a member's display name in place, keeping its position.
func (r *RoomState) Rename(sid SessionID, name string) bool {
	i := r.indexOf(sid)
	if i < 0 {
		return false
	}
	r.members[i].DisplayName = name
	return true
}

func (r *RoomState) RemoveMember(sid SessionID) (domain.Member, bool) {
	i := r.indexOf(sid)
	if i < 0 {
		return domain.Member{}, false
	}
	m := r.members[i]
	r.members = slices.Delete(r.members, i, i+1)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Msg("member removed")
	return m, true
}

// Members returns a copy in join order.
func (r *RoomState) Members() []domain.Member {
	return slices.Clone(r.members)
}

func (r *RoomState) MemberIDs() []SessionID {
	out := make([]SessionID, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.ConnectionID)
	}
	return out
}

func (r *RoomState) Info() RoomInfo {
	return RoomInfo{Name: r.id, MemberCount: len(r.members), Language: r.language, Agenda: r.agenda}
}

func (r *RoomState) Detail() RoomDetail {
	return RoomDetail{RoomInfo: r.Info(), Code: r.code, Members: Snapshot(r)}
}
