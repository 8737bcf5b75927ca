package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/dkeye/CodeRoom/internal/config"
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type SignalWSController struct {
	Orch *orch.Orchestrator

	cfg      *config.Config
	limiter  *RateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origins are filtered by the CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// client is the adapter side state of one websocket.
type client struct {
	sid  core.SessionID
	conn *WsSignalConn

	mu    sync.Mutex
	media core.MediaConnection
}

func (cl *client) currentMedia() core.MediaConnection {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.media
}

func (cl *client) swapMedia(mc core.MediaConnection) {
	cl.mu.Lock()
	cl.media = mc
	cl.mu.Unlock()
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}

	cl := &client{
		sid: domain.NewConnectionID(),
		conn: &WsSignalConn{
			conn: ws,
			send: make(chan core.Frame, ctl.cfg.SendBuffer),
		},
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("client_token", c.GetString("client_token")).Msg("new WS connection")

	err = ctl.Orch.Submit(ctx, orch.Event{
		Type:        orch.EventConnect,
		SID:         cl.sid,
		Signal:      cl.conn,
		ClientToken: c.GetString("client_token"),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("connect rejected")
		cl.conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cl.conn)
	go ctl.readPump(ctx, cancel, cl)
}
