package signal

import "github.com/dkeye/CodeRoom/internal/core"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, core.PongMsg{Type: core.MsgPong})
}
