package domain

import "time"

// Member represents a connection's participation in a room.
// No transport or lifecycle logic here.
type Member struct {
	ConnectionID ConnectionID
	DisplayName  string
	JoinedAt     time.Time
}

func NewMember(id ConnectionID, displayName string, joinedAt time.Time) Member {
	return Member{ConnectionID: id, DisplayName: displayName, JoinedAt: joinedAt}
}
