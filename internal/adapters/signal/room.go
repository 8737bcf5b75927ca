package signal

import (
	"context"

	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/rs/zerolog/log"
)

// Validation of room and name happens on the loop, which answers with
// an error frame of its own.
func (ctl *SignalWSController) handleJoin(ctx context.Context, cl *client, data []byte) {
	var p struct {
		Room   string `json:"room"`
		Name   string `json:"name"`
		Agenda string `json:"agenda,omitempty"`
	}
	if !ctl.decode(cl, data, &p) {
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("room", p.Room).Msg("join")
	ctl.submit(ctx, cl, orch.Event{
		Type:        orch.EventJoin,
		Room:        p.Room,
		DisplayName: p.Name,
		Agenda:      p.Agenda,
	})
}
