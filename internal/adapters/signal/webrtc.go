package signal

import (
	"context"

	"github.com/dkeye/CodeRoom/internal/adapters/rtc"
	"github.com/dkeye/CodeRoom/internal/app/orch"
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) sendCandidate(c *WsSignalConn, ci webrtc.ICECandidateInit) {
	resp := core.CandidateMsg{
		Type:      core.MsgCandidate,
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		resp.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		resp.SDPMLineIndex = *ci.SDPMLineIndex
	}
	ctl.sendJSON(c, resp)
}

// handleOffer negotiates a fresh peer connection for the client. The
// callbacks submit from their own goroutine because the loop may close
// the connection, and with it fire OnClosed, while it holds the loop.
func (ctl *SignalWSController) handleOffer(ctx context.Context, cl *client, data []byte) {
	var p core.SDPMsg
	if !ctl.decode(cl, data, &p) {
		return
	}

	wc, err := rtc.NewWebRTCConnection(rtc.Config(ctl.cfg.ICEServers), cl.sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		ctl.sendError(cl.conn, core.ErrCodeMediaFailed)
		return
	}

	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(cl.conn, ci)
	})
	wc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go ctl.submit(ctx, cl, orch.Event{Type: orch.EventMediaTrack, Media: wc, Track: track, TrackCtx: trackCtx})
	})
	wc.OnClosed(func() {
		go ctl.submit(context.Background(), cl, orch.Event{Type: orch.EventMediaClosed, Media: wc})
	})

	if err = wc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		wc.Close()
		ctl.sendError(cl.conn, core.ErrCodeMediaFailed)
		return
	}

	answer, err := wc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		wc.Close()
		ctl.sendError(cl.conn, core.ErrCodeMediaFailed)
		return
	}

	cl.swapMedia(wc)
	ctl.sendJSON(cl.conn, core.SDPMsg{Type: core.MsgAnswer, SDP: answer.SDP})
	ctl.submit(ctx, cl, orch.Event{Type: orch.EventMediaReady, Media: wc})
}

// handleAnswer completes a renegotiation offered by the server.
func (ctl *SignalWSController) handleAnswer(cl *client, data []byte) {
	var p core.SDPMsg
	if !ctl.decode(cl, data, &p) {
		return
	}
	mc := cl.currentMedia()
	if mc == nil || mc.IsClosed() {
		log.Warn().Str("module", "signal").Str("sid", string(cl.sid)).Msg("answer: no media connection")
		return
	}
	if err := mc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("apply answer")
	}
}

func (ctl *SignalWSController) handleCandidate(cl *client, data []byte) {
	var p struct {
		Candidate     string  `json:"candidate"`
		SDPMid        string  `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	}
	if !ctl.decode(cl, data, &p) {
		return
	}

	cand := webrtc.ICECandidateInit{Candidate: p.Candidate, SDPMLineIndex: p.SDPMLineIndex}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}

	mc := cl.currentMedia()
	if mc == nil || mc.IsClosed() {
		log.Warn().Str("module", "signal").Str("sid", string(cl.sid)).Msg("candidate: no media connection")
		return
	}
	if err := mc.AddICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("add ice candidate")
	}
}

// handleMute silences one speaker for this client only.
func (ctl *SignalWSController) handleMute(ctx context.Context, cl *client, data []byte) {
	var p struct {
		ConnectionID core.SessionID `json:"connection_id"`
		Muted        bool           `json:"muted"`
	}
	if !ctl.decode(cl, data, &p) {
		return
	}
	ctl.submit(ctx, cl, orch.Event{Type: orch.EventMute, Target: p.ConnectionID, Muted: p.Muted})
}
