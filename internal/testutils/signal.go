// Package testutils holds fakes shared by package tests.
package testutils

import (
	"errors"
	"sync"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/goccy/go-json"
)

var (
	ErrFull   = errors.New("fake: buffer full")
	ErrClosed = errors.New("fake: connection closed")
)

// RecordingConn is a core.SignalConnection that keeps every frame it accepts.
// Capacity 0 means unbounded.
type RecordingConn struct {
	mu       sync.Mutex
	frames   []core.Frame
	capacity int
	closed   bool
}

func NewRecordingConn() *RecordingConn { return &RecordingConn{} }

// NewBoundedConn rejects frames once capacity frames are held.
func NewBoundedConn(capacity int) *RecordingConn { return &RecordingConn{capacity: capacity} }

func (c *RecordingConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.capacity > 0 && len(c.frames) >= c.capacity {
		return ErrFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *RecordingConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *RecordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages decodes every frame received so far.
func (c *RecordingConn) Messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			m = map[string]any{"type": "<undecodable>"}
		}
		out = append(out, m)
	}
	return out
}

func (c *RecordingConn) Types() []string {
	msgs := c.Messages()
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		t, _ := m["type"].(string)
		out = append(out, t)
	}
	return out
}

// OfType returns the received messages of one type, in order.
func (c *RecordingConn) OfType(typ string) []map[string]any {
	var out []map[string]any
	for _, m := range c.Messages() {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the latest message of typ.
func (c *RecordingConn) Last(typ string) (map[string]any, bool) {
	msgs := c.OfType(typ)
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1], true
}

// Reset forgets recorded frames.
func (c *RecordingConn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// PresenceNames extracts the display names from a presence message.
func PresenceNames(msg map[string]any) []string {
	raw, _ := msg["members"].([]any)
	out := make([]string, 0, len(raw))
	for _, m := range raw {
		if mm, ok := m.(map[string]any); ok {
			name, _ := mm["name"].(string)
			out = append(out, name)
		}
	}
	return out
}

// PresenceIDs extracts the connection ids from a presence message.
func PresenceIDs(msg map[string]any) []string {
	raw, _ := msg["members"].([]any)
	out := make([]string, 0, len(raw))
	for _, m := range raw {
		if mm, ok := m.(map[string]any); ok {
			id, _ := mm["connection_id"].(string)
			out = append(out, id)
		}
	}
	return out
}
