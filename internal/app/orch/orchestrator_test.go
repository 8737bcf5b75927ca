package orch_test

import (
	"testing"

	"github.com/dkeye/CodeRoom/internal/app"
	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t     *testing.T
	o     *orch.Orchestrator
	conns map[string]*testutils.RecordingConn
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	o := orch.New(
		app.NewRegistry(),
		app.NewRoomRegistry(app.DefaultCode, app.DefaultLanguage),
		app.SimplePolicy{},
		nil,
		16,
	)
	return &harness{t: t, o: o, conns: make(map[string]*testutils.RecordingConn)}
}

func (h *harness) connectWith(id string, c *testutils.RecordingConn) *testutils.RecordingConn {
	h.conns[id] = c
	h.o.Dispatch(orch.Event{Type: orch.EventConnect, SID: core.SessionID(id), Signal: c})
	return c
}

func (h *harness) connect(id string) *testutils.RecordingConn {
	return h.connectWith(id, testutils.NewRecordingConn())
}

func (h *harness) join(id, room, name string) {
	h.o.Dispatch(orch.Event{Type: orch.EventJoin, SID: core.SessionID(id), Room: room, DisplayName: name})
}

// currentRoom is the room id a well behaved client sends on change events.
func (h *harness) currentRoom(id string) string {
	if sess, ok := h.o.Registry.GetSession(core.SessionID(id)); ok {
		return string(sess.Room)
	}
	return ""
}

func (h *harness) code(id, code string) {
	h.o.Dispatch(orch.Event{Type: orch.EventCodeChange, SID: core.SessionID(id), Room: h.currentRoom(id), Code: code})
}

func (h *harness) language(id, lang string) {
	h.o.Dispatch(orch.Event{Type: orch.EventLanguageChange, SID: core.SessionID(id), Room: h.currentRoom(id), Language: lang})
}

func (h *harness) leave(id string) {
	h.o.Dispatch(orch.Event{Type: orch.EventLeave, SID: core.SessionID(id)})
}

func (h *harness) disconnect(id string) {
	h.o.Dispatch(orch.Event{Type: orch.EventDisconnect, SID: core.SessionID(id)})
}

func (h *harness) resetAll() {
	for _, c := range h.conns {
		c.Reset()
	}
}

func (h *harness) room(id string) (*core.RoomState, bool) {
	return h.o.Rooms.Get(domain.RoomID(id))
}

func lastPresence(t *testing.T, c *testutils.RecordingConn) []string {
	t.Helper()
	p, ok := c.Last(core.MsgPresence)
	require.True(t, ok, "expected a presence message")
	return testutils.PresenceNames(p)
}

func TestConnectSendsWelcome(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")

	msg, ok := a.Last(core.MsgWelcome)
	require.True(t, ok)
	assert.Equal(t, "a", msg["connection_id"])
	assert.Equal(t, 1, h.o.Registry.Count())
}

// The six scenarios run in sequence against one orchestrator.
func TestEndToEndScenario(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	b := h.connect("b")
	h.resetAll()

	// 1. Alice creates R1 and gets the default snapshot.
	h.join("a", "R1", "Alice")
	room, ok := h.room("R1")
	require.True(t, ok)
	assert.Equal(t, app.DefaultCode, room.Code())
	assert.Equal(t, []string{"presence", "code_snapshot", "language_snapshot"}, a.Types())
	assert.Equal(t, []string{"Alice"}, lastPresence(t, a))
	snap, _ := a.Last(core.MsgCodeSnapshot)
	assert.Equal(t, app.DefaultCode, snap["code"])
	lang, _ := a.Last(core.MsgLanguageSnapshot)
	assert.Equal(t, app.DefaultLanguage, lang["language"])

	// 2. Alone in the room, the change is stored but relayed to nobody.
	a.Reset()
	h.code("a", "x=1")
	assert.Equal(t, "x=1", room.Code())
	assert.Empty(t, a.Messages())

	// 3. Bob joins and sees x=1; Alice is told Bob joined.
	h.join("b", "R1", "Bob")
	assert.Equal(t, []string{"Alice", "Bob"}, lastPresence(t, a))
	assert.Equal(t, []string{"Alice", "Bob"}, lastPresence(t, b))
	joined, ok := a.Last(core.MsgMemberJoined)
	require.True(t, ok)
	assert.Equal(t, "Bob", joined["member"].(map[string]any)["name"])
	_, ok = b.Last(core.MsgMemberJoined)
	assert.False(t, ok, "joiner gets no notice about itself")
	bsnap, _ := b.Last(core.MsgCodeSnapshot)
	assert.Equal(t, "x=1", bsnap["code"])
	assert.Empty(t, a.OfType(core.MsgCodeSnapshot), "snapshot goes to the joiner only")

	// 4. Alice edits; only Bob hears it.
	h.resetAll()
	h.code("a", "x=2")
	upd, ok := b.Last(core.MsgCodeUpdate)
	require.True(t, ok)
	assert.Equal(t, "x=2", upd["code"])
	assert.Empty(t, a.Messages())

	// 5. Alice leaves; Bob sees the new presence and the notice.
	h.resetAll()
	h.leave("a")
	assert.Equal(t, []string{"Bob"}, lastPresence(t, b))
	left, ok := b.Last(core.MsgMemberLeft)
	require.True(t, ok)
	assert.Equal(t, "Alice", left["member"].(map[string]any)["name"])
	assert.Equal(t, []string{core.MsgLeft}, a.Types())
	room, ok = h.room("R1")
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())

	// 6. Bob drops; the room goes away and a new join starts fresh.
	h.disconnect("b")
	_, ok = h.room("R1")
	assert.False(t, ok)
	assert.Zero(t, h.o.Rooms.Len())

	c := h.connect("c")
	h.join("c", "R1", "Carol")
	csnap, ok := c.Last(core.MsgCodeSnapshot)
	require.True(t, ok)
	assert.Equal(t, app.DefaultCode, csnap["code"])
	clang, _ := c.Last(core.MsgLanguageSnapshot)
	assert.Equal(t, app.DefaultLanguage, clang["language"])
}

func TestJoinOrderingToJoinerAndOthers(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	b := h.connect("b")
	h.join("a", "R1", "Alice")
	h.resetAll()

	h.join("b", "R1", "Bob")
	assert.Equal(t, []string{"presence", "code_snapshot", "language_snapshot"}, b.Types())
	assert.Equal(t, []string{"presence", "member_joined"}, a.Types())
}

func TestLanguageChangeEchoesToSender(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	b := h.connect("b")
	h.join("a", "R1", "Alice")
	h.join("b", "R1", "Bob")
	h.resetAll()

	h.language("a", "python")

	for _, c := range []*testutils.RecordingConn{a, b} {
		msg, ok := c.Last(core.MsgLanguageUpdate)
		require.True(t, ok)
		assert.Equal(t, "python", msg["language"])
	}
	room, _ := h.room("R1")
	assert.Equal(t, "python", room.Language())
}

func TestCodeChangeNeverEchoes(t *testing.T) {
	h := newHarness(t)
	conns := []*testutils.RecordingConn{h.connect("a"), h.connect("b"), h.connect("c")}
	for _, id := range []string{"a", "b", "c"} {
		h.join(id, "R1", id)
	}
	h.resetAll()

	h.code("b", "print(1)")

	assert.Empty(t, conns[1].OfType(core.MsgCodeUpdate))
	assert.Len(t, conns[0].OfType(core.MsgCodeUpdate), 1)
	assert.Len(t, conns[2].OfType(core.MsgCodeUpdate), 1)
}

func TestSnapshotFreshness(t *testing.T) {
	h := newHarness(t)
	h.connect("a")
	h.join("a", "R1", "Alice")
	for i, code := range []string{"v1", "v2", "v3"} {
		h.code("a", code)
		h.language("a", []string{"go", "rust", "python"}[i])
	}

	late := h.connect("late")
	h.join("late", "R1", "Late")

	snap, _ := late.Last(core.MsgCodeSnapshot)
	assert.Equal(t, "v3", snap["code"])
	lang, _ := late.Last(core.MsgLanguageSnapshot)
	assert.Equal(t, "python", lang["language"])
}

func TestTypingRelay(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	b := h.connect("b")
	h.join("a", "R1", "Alice")
	h.join("b", "R1", "Bob")
	h.resetAll()

	h.o.Dispatch(orch.Event{Type: orch.EventTyping, SID: "a", Room: "R1", DisplayName: "spoofed"})

	assert.Empty(t, a.Messages())
	msg, ok := b.Last(core.MsgTyping)
	require.True(t, ok)
	assert.Equal(t, "Alice", msg["name"], "the recorded display name is relayed")
	assert.Equal(t, "a", msg["connection_id"])
}

func TestCursorRelay(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	b := h.connect("b")
	h.join("a", "R1", "Alice")
	h.join("b", "R1", "Bob")
	h.resetAll()

	h.o.Dispatch(orch.Event{Type: orch.EventCursorChange, SID: "a", Room: "R1", Position: []byte(`{"lineNumber":3,"column":7}`)})

	assert.Empty(t, a.Messages())
	msg, ok := b.Last(core.MsgCursor)
	require.True(t, ok)
	pos := msg["position"].(map[string]any)
	assert.EqualValues(t, 3, pos["lineNumber"])

	h.resetAll()
	h.o.Dispatch(orch.Event{Type: orch.EventCursorChange, SID: "a", Room: "R1"})
	errMsg, ok := a.Last(core.MsgError)
	require.True(t, ok)
	assert.Equal(t, core.ErrCodeBadPayload, errMsg["error"])
	assert.Empty(t, b.Messages())
}

func TestSwitchingRoomsLeavesThePreviousOne(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	b := h.connect("b")
	h.join("a", "R1", "Alice")
	h.join("b", "R1", "Bob")
	h.resetAll()

	h.join("a", "R2", "Alice")

	r1, ok := h.room("R1")
	require.True(t, ok)
	assert.Equal(t, []core.SessionID{"b"}, r1.MemberIDs())
	r2, ok := h.room("R2")
	require.True(t, ok)
	assert.Equal(t, []core.SessionID{"a"}, r2.MemberIDs())

	assert.Equal(t, []string{"Bob"}, lastPresence(t, b))
	_, ok = b.Last(core.MsgMemberLeft)
	assert.True(t, ok)
	assert.Equal(t, []string{"Alice"}, lastPresence(t, a))

	sess, _ := h.o.Registry.GetSession("a")
	assert.Equal(t, domain.RoomID("R2"), sess.Room)
}

func TestSwitchingFromSoloRoomDeletesIt(t *testing.T) {
	h := newHarness(t)
	h.connect("a")
	h.join("a", "R1", "Alice")
	h.code("a", "secret")

	h.join("a", "R2", "Alice")

	_, ok := h.room("R1")
	assert.False(t, ok)
	assert.Equal(t, 1, h.o.Rooms.Len())
}

func TestRejoinSameRoomRefreshes(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	b := h.connect("b")
	h.join("a", "R1", "Alice")
	h.code("a", "kept")
	h.join("b", "R1", "Bob")
	h.resetAll()

	h.join("a", "R1", "Alicia")

	room, ok := h.room("R1")
	require.True(t, ok, "sole occupancy must not be torn down")
	assert.Equal(t, "kept", room.Code())
	assert.Equal(t, []string{"Alicia", "Bob"}, lastPresence(t, b))
	assert.Empty(t, b.OfType(core.MsgMemberJoined))
	assert.Empty(t, b.OfType(core.MsgMemberLeft))
	snap, ok := a.Last(core.MsgCodeSnapshot)
	require.True(t, ok)
	assert.Equal(t, "kept", snap["code"])
}

func TestDuplicateDisplayNamesStayDistinct(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	h.connect("b")
	h.join("a", "R1", "Sam")
	h.join("b", "R1", "Sam")

	p, ok := a.Last(core.MsgPresence)
	require.True(t, ok)
	assert.Equal(t, []string{"Sam", "Sam"}, testutils.PresenceNames(p))
	assert.Equal(t, []string{"a", "b"}, testutils.PresenceIDs(p))

	h.leave("b")
	p, ok = a.Last(core.MsgPresence)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, testutils.PresenceIDs(p))
	assert.Equal(t, []string{"Sam"}, testutils.PresenceNames(p))
}

func TestLeaveAndDisconnectAreIdempotent(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	b := h.connect("b")
	h.join("a", "R1", "Alice")
	h.join("b", "R1", "Bob")
	h.resetAll()

	h.leave("a")
	h.leave("a")
	h.disconnect("a")
	h.disconnect("a")

	assert.Len(t, b.OfType(core.MsgMemberLeft), 1, "exactly one left notice")
	assert.Len(t, b.OfType(core.MsgPresence), 1)
	assert.Len(t, a.OfType(core.MsgLeft), 1, "ack only for the effective leave")
	room, ok := h.room("R1")
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())
	assert.Equal(t, 1, h.o.Registry.Count())
}

func TestChangesOutsideRoomAreDiscarded(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	b := h.connect("b")
	h.join("b", "R1", "Bob")
	h.resetAll()

	h.code("a", "nope")
	h.language("a", "go")
	h.o.Dispatch(orch.Event{Type: orch.EventTyping, SID: "a"})

	assert.Empty(t, a.Messages())
	assert.Empty(t, b.Messages())
	room, _ := h.room("R1")
	assert.Equal(t, app.DefaultCode, room.Code())
}

func TestChangeNamingAnotherRoomIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.connect("a")
	b := h.connect("b")
	h.connect("c")
	h.join("a", "R1", "Alice")
	h.join("b", "R1", "Bob")
	h.join("c", "R2", "Carol")
	h.resetAll()

	h.o.Dispatch(orch.Event{Type: orch.EventCodeChange, SID: "a", Room: "R2", Code: "leak"})

	r2, _ := h.room("R2")
	assert.Equal(t, app.DefaultCode, r2.Code())
	assert.Empty(t, b.Messages())

	h.o.Dispatch(orch.Event{Type: orch.EventCodeChange, SID: "a", Room: "R1", Code: "ok"})
	r1, _ := h.room("R1")
	assert.Equal(t, "ok", r1.Code())
}

func TestMalformedEventsAreRejected(t *testing.T) {
	tests := []struct {
		name string
		ev   orch.Event
		code string
	}{
		{"empty room", orch.Event{Type: orch.EventJoin, Room: "  ", DisplayName: "Alice"}, core.ErrCodeInvalidRoom},
		{"missing name", orch.Event{Type: orch.EventJoin, Room: "R1"}, core.ErrCodeInvalidName},
		{"long name", orch.Event{Type: orch.EventJoin, Room: "R1", DisplayName: string(make([]byte, domain.MaxUsernameLen+1))}, core.ErrCodeInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			a := h.connect("a")
			a.Reset()

			ev := tt.ev
			ev.SID = "a"
			h.o.Dispatch(ev)

			assert.Equal(t, []string{core.MsgError}, a.Types())
			msg, _ := a.Last(core.MsgError)
			assert.Equal(t, tt.code, msg["error"])
			assert.Zero(t, h.o.Rooms.Len())
			sess, _ := h.o.Registry.GetSession("a")
			assert.False(t, sess.InRoom())
		})
	}
}

func TestInvalidLanguageIsRejectedWithoutStateChange(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	b := h.connect("b")
	h.join("a", "R1", "Alice")
	h.join("b", "R1", "Bob")
	h.resetAll()

	h.language("a", "   ")

	msg, ok := a.Last(core.MsgError)
	require.True(t, ok)
	assert.Equal(t, core.ErrCodeInvalidLanguage, msg["error"])
	assert.Empty(t, b.Messages())
	room, _ := h.room("R1")
	assert.Equal(t, app.DefaultLanguage, room.Language())
}

func TestEventsFromUnknownSessionAreDropped(t *testing.T) {
	h := newHarness(t)
	b := h.connect("b")
	h.join("b", "R1", "Bob")
	b.Reset()

	h.join("ghost", "R1", "Ghost")
	h.code("ghost", "x")

	room, _ := h.room("R1")
	assert.Equal(t, 1, room.MemberCount())
	assert.Empty(t, b.Messages())
}

func TestSlowMemberIsKicked(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	// welcome, presence, code_snapshot, language_snapshot fill the buffer.
	slow := h.connectWith("slow", testutils.NewBoundedConn(4))
	h.join("a", "R1", "Alice")
	h.join("slow", "R1", "Slow")
	a.Reset()

	h.code("a", "x=1")

	assert.True(t, slow.Closed())
	room, ok := h.room("R1")
	require.True(t, ok)
	assert.Equal(t, []core.SessionID{"a"}, room.MemberIDs())
	assert.Equal(t, []string{"Alice"}, lastPresence(t, a))

	// Further events from the kicked session are ignored until its disconnect.
	h.code("slow", "late")
	assert.Equal(t, "x=1", room.Code())

	h.disconnect("slow")
	assert.Equal(t, 1, h.o.Registry.Count())
}

func TestDropPolicyKeepsSlowMember(t *testing.T) {
	h := newHarness(t)
	h.o.Policy = app.DropPolicy{}
	h.connect("a")
	slow := h.connectWith("slow", testutils.NewBoundedConn(4))
	h.join("a", "R1", "Alice")
	h.join("slow", "R1", "Slow")

	h.code("a", "x=1")

	assert.False(t, slow.Closed())
	room, _ := h.room("R1")
	assert.Equal(t, 2, room.MemberCount())
}

func TestAgendaIsSetByCreator(t *testing.T) {
	h := newHarness(t)
	a := h.connect("a")
	b := h.connect("b")
	h.o.Dispatch(orch.Event{Type: orch.EventJoin, SID: "a", Room: "R1", DisplayName: "Alice", Agenda: " Interview "})
	h.o.Dispatch(orch.Event{Type: orch.EventJoin, SID: "b", Room: "R1", DisplayName: "Bob", Agenda: "ignored"})

	room, ok := h.room("R1")
	require.True(t, ok)
	assert.Equal(t, "Interview", room.Agenda())
	for _, c := range []*testutils.RecordingConn{a, b} {
		p, ok := c.Last(core.MsgPresence)
		require.True(t, ok)
		assert.Equal(t, "Interview", p["agenda"])
	}
}

func TestChangeWithoutRoomIsRejected(t *testing.T) {
	tests := []struct {
		name string
		ev   orch.Event
	}{
		{"code", orch.Event{Type: orch.EventCodeChange, Code: "evil"}},
		{"language", orch.Event{Type: orch.EventLanguageChange, Language: "go"}},
		{"typing", orch.Event{Type: orch.EventTyping}},
		{"cursor", orch.Event{Type: orch.EventCursorChange, Position: []byte(`{"line":1}`)}},
		{"blank room", orch.Event{Type: orch.EventCodeChange, Room: "   ", Code: "evil"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			a := h.connect("a")
			b := h.connect("b")
			h.join("a", "R1", "Alice")
			h.join("b", "R1", "Bob")
			h.resetAll()

			ev := tt.ev
			ev.SID = "a"
			h.o.Dispatch(ev)

			room, ok := h.room("R1")
			require.True(t, ok)
			assert.Equal(t, app.DefaultCode, room.Code())
			assert.Equal(t, app.DefaultLanguage, room.Language())
			assert.Empty(t, b.Messages())
			errMsg, ok := a.Last(core.MsgError)
			require.True(t, ok)
			assert.Equal(t, core.ErrCodeInvalidRoom, errMsg["error"])
		})
	}
}
