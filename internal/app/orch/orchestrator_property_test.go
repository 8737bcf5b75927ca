package orch_test

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// model is the expected membership: room -> connection ids in join order.
type model struct {
	rooms  map[string][]string
	roomOf map[string]string
}

func (m *model) remove(id string) {
	r, ok := m.roomOf[id]
	if !ok {
		return
	}
	delete(m.roomOf, id)
	m.rooms[r] = slices.DeleteFunc(m.rooms[r], func(s string) bool { return s == id })
	if len(m.rooms[r]) == 0 {
		delete(m.rooms, r)
	}
}

func (m *model) join(id, room string) {
	if m.roomOf[id] == room {
		return
	}
	m.remove(id)
	m.rooms[room] = append(m.rooms[room], id)
	m.roomOf[id] = room
}

func TestPresenceMatchesMembershipUnderRandomInterleavings(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed*7919))
			h := newHarness(t)
			m := &model{rooms: map[string][]string{}, roomOf: map[string]string{}}
			roomIDs := []string{"R1", "R2", "R3"}

			live := map[string]bool{}
			next := 0
			const slots = 8

			for step := 0; step < 400; step++ {
				if len(live) < slots && rng.IntN(4) == 0 {
					id := fmt.Sprintf("c%d", next)
					next++
					h.connect(id)
					live[id] = true
					continue
				}
				if len(live) == 0 {
					continue
				}
				ids := make([]string, 0, len(live))
				for id := range live {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				id := ids[rng.IntN(len(ids))]

				switch rng.IntN(5) {
				case 0, 1:
					room := roomIDs[rng.IntN(len(roomIDs))]
					h.join(id, room, "user")
					m.join(id, room)
				case 2:
					h.leave(id)
					m.remove(id)
				case 3:
					h.disconnect(id)
					m.remove(id)
					delete(live, id)
				case 4:
					h.code(id, fmt.Sprintf("step %d", step))
				}
			}

			for _, rid := range roomIDs {
				room, ok := h.room(rid)
				want := m.rooms[rid]
				if len(want) == 0 {
					assert.False(t, ok, "room %s should not exist", rid)
					continue
				}
				require.True(t, ok, "room %s should exist", rid)

				got := make([]string, 0, room.MemberCount())
				for _, sid := range room.MemberIDs() {
					got = append(got, string(sid))
				}
				assert.Equal(t, want, got)

				for _, id := range want {
					p, ok := h.conns[id].Last(core.MsgPresence)
					require.True(t, ok)
					assert.Equal(t, want, testutils.PresenceIDs(p), "last presence seen by %s", id)
				}
			}

			// Single-room invariant.
			for id := range live {
				sess, ok := h.o.Registry.GetSession(core.SessionID(id))
				require.True(t, ok)
				count := 0
				for _, rid := range roomIDs {
					if room, ok := h.room(rid); ok && room.HasMember(core.SessionID(id)) {
						count++
					}
				}
				assert.LessOrEqual(t, count, 1)
				assert.Equal(t, domain.RoomID(m.roomOf[id]), sess.Room)
			}
			assert.Equal(t, len(live), h.o.Registry.Count())
		})
	}
}
