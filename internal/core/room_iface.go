package core

import (
	"github.com/dkeye/CodeRoom/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

// Merge folds other into r.
func (r *PublishResult) Merge(other PublishResult) {
	r.SendTo += other.SendTo
	r.Dropped = append(r.Dropped, other.Dropped...)
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ConnectionID domain.ConnectionID `json:"connection_id"`
	DisplayName  string              `json:"name"`
}

type RoomInfo struct {
	Name        domain.RoomID `json:"name"`
	MemberCount int           `json:"client_count"`
	Language    string        `json:"language"`
	Agenda      string        `json:"agenda,omitempty"`
}

// RoomDetail is the full read view of one room.
type RoomDetail struct {
	RoomInfo
	Code    string      `json:"code"`
	Members []MemberDTO `json:"members"`
}
