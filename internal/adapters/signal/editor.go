package signal

import (
	"context"

	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/goccy/go-json"
)

// Editor events carry the room id. The loop rejects a missing one and
// discards events for any room but the session's current one.

func (ctl *SignalWSController) handleCodeChange(ctx context.Context, cl *client, data []byte) {
	var p struct {
		Room string `json:"room"`
		Code string `json:"code"`
	}
	if !ctl.decode(cl, data, &p) {
		return
	}
	ctl.submit(ctx, cl, orch.Event{Type: orch.EventCodeChange, Room: p.Room, Code: p.Code})
}

func (ctl *SignalWSController) handleLanguageChange(ctx context.Context, cl *client, data []byte) {
	var p struct {
		Room     string `json:"room"`
		Language string `json:"language"`
	}
	if !ctl.decode(cl, data, &p) {
		return
	}
	ctl.submit(ctx, cl, orch.Event{Type: orch.EventLanguageChange, Room: p.Room, Language: p.Language})
}

func (ctl *SignalWSController) handleTyping(ctx context.Context, cl *client, data []byte) {
	var p struct {
		Room string `json:"room"`
	}
	if !ctl.decode(cl, data, &p) {
		return
	}
	ctl.submit(ctx, cl, orch.Event{Type: orch.EventTyping, Room: p.Room})
}

func (ctl *SignalWSController) handleCursorChange(ctx context.Context, cl *client, data []byte) {
	var p struct {
		Room     string          `json:"room"`
		Position json.RawMessage `json:"position"`
	}
	if !ctl.decode(cl, data, &p) {
		return
	}
	ctl.submit(ctx, cl, orch.Event{Type: orch.EventCursorChange, Room: p.Room, Position: p.Position})
}
