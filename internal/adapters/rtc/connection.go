package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("peer connection closed")

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	sid    core.SessionID
	onICE  func(webrtc.ICECandidateInit)
	cancel context.CancelFunc

	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onClosed func()

	// negotiation guards the local description against concurrent offers.
	negotiation sync.Mutex
	closed      atomic.Bool
	closedOnce  sync.Once
}

// Config builds a pion configuration from ICE server urls.
func Config(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

func NewWebRTCConnection(cfg webrtc.Configuration, sid core.SessionID) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{pc: pc, sid: sid}, nil
}

func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.fireClosed()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("sid", string(c.sid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(ctx, track, receiver)
		}
	})

	return nil
}

func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.negotiation.Lock()
	defer c.negotiation.Unlock()

	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

// CreateAndSetOffer starts a server side renegotiation. Candidates are
// trickled through OnICECandidate.
func (c *WebRTCConnection) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.negotiation.Lock()
	defer c.negotiation.Unlock()

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.negotiation.Lock()
	defer c.negotiation.Unlock()
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCConnection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("close error")
		} else {
			log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("closed")
		}
	}
	c.fireClosed()
}

func (c *WebRTCConnection) IsClosed() bool { return c.closed.Load() }

func (c *WebRTCConnection) fireClosed() {
	c.closedOnce.Do(func() {
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.onICE = fn
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

// OnClosed sets the callback run once when the peer connection ends.
func (c *WebRTCConnection) OnClosed(fn func()) { c.onClosed = fn }

// AddLocalTrack attaches a local static RTP track to the PeerConnection.
func (c *WebRTCConnection) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.pc.AddTrack(track)
}

var _ core.MediaConnection = (*WebRTCConnection)(nil)
