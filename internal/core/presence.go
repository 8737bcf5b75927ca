package core

// Snapshot is the presence list of room, in join order.
// It is computed on every call and never cached.
func Snapshot(room *RoomState) []MemberDTO {
	out := make([]MemberDTO, 0, room.MemberCount())
	for _, m := range room.members {
		out = append(out, MemberDTO{ConnectionID: m.ConnectionID, DisplayName: m.DisplayName})
	}
	return out
}
