package signal

import (
	"context"
	"time"

	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// maxRateViolations is how many rate limited frames in a row a client may
// send before the connection is closed.
const maxRateViolations = 20

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

// readPump owns the connection lifetime: when it returns the session is
// reported as disconnected exactly once.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cl *client) {
	defer func() {
		cancel()
		cl.conn.Close()
		ctl.limiter.Forget(cl.sid)
		if err := ctl.Orch.Submit(context.Background(), orch.Event{Type: orch.EventDisconnect, SID: cl.sid}); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("disconnect not delivered")
		}
		log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump closed")
	}()

	ws := cl.conn.conn
	_ = ws.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	})

	violations := 0
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !ctl.limiter.Allow(cl.sid) {
			violations++
			if violations > maxRateViolations {
				log.Warn().Str("module", "signal").Str("sid", string(cl.sid)).Int("violations", violations).Msg("rate limit flood, closing")
				return
			}
			log.Warn().Str("module", "signal").Str("sid", string(cl.sid)).Msg("rate limited")
			ctl.sendError(cl.conn, core.ErrCodeRateLimited)
			continue
		}
		violations = 0
		ctl.handleSignal(ctx, cl, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cl *client, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("bad json")
		ctl.sendError(cl.conn, core.ErrCodeBadPayload)
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(ctx, cl, data)
	case "leave":
		ctl.submit(ctx, cl, orch.Event{Type: orch.EventLeave})
	case "code_change":
		ctl.handleCodeChange(ctx, cl, data)
	case "language_change":
		ctl.handleLanguageChange(ctx, cl, data)
	case "typing":
		ctl.handleTyping(ctx, cl, data)
	case "cursor_change":
		ctl.handleCursorChange(ctx, cl, data)
	case "ping":
		ctl.handlePing(cl.conn)
	case "offer":
		ctl.handleOffer(ctx, cl, data)
	case "answer":
		ctl.handleAnswer(cl, data)
	case "candidate":
		ctl.handleCandidate(cl, data)
	case "mute":
		ctl.handleMute(ctx, cl, data)
	default:
		log.Debug().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(cl.conn, core.ErrCodeUnknownType)
	}
}

// decode unmarshals a typed payload and answers bad_payload on failure.
func (ctl *SignalWSController) decode(cl *client, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("bad payload")
		ctl.sendError(cl.conn, core.ErrCodeBadPayload)
		return false
	}
	return true
}

func (ctl *SignalWSController) submit(ctx context.Context, cl *client, ev orch.Event) {
	ev.SID = cl.sid
	if err := ctl.Orch.Submit(ctx, ev); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Str("event", ev.Type.String()).Msg("submit")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	f, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(f)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code string) {
	ctl.sendJSON(c, core.NewErrorMsg(code))
}
