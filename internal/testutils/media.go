package testutils

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
)

// FakeMedia is an in-memory core.MediaConnection.
type FakeMedia struct {
	mu       sync.Mutex
	closed   bool
	offers   int
	tracks   []*webrtc.TrackLocalStaticRTP
	onClosed func()
}

func NewFakeMedia() *FakeMedia { return &FakeMedia{} }

func (m *FakeMedia) Start(context.Context) error { return nil }

func (m *FakeMedia) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	fn := m.onClosed
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (m *FakeMedia) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *FakeMedia) AddICECandidate(webrtc.ICECandidateInit) error { return nil }

func (m *FakeMedia) ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "fake-answer"}, nil
}

func (m *FakeMedia) ApplyAnswer(webrtc.SessionDescription) error { return nil }

func (m *FakeMedia) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	m.mu.Lock()
	m.offers++
	m.mu.Unlock()
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "fake-offer"}, nil
}

func (m *FakeMedia) OnICECandidate(func(webrtc.ICECandidateInit)) {}

func (m *FakeMedia) OnTrack(func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (m *FakeMedia) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	m.mu.Lock()
	m.tracks = append(m.tracks, track)
	m.mu.Unlock()
	return nil, nil
}

func (m *FakeMedia) OnClosed(fn func()) {
	m.mu.Lock()
	m.onClosed = fn
	m.mu.Unlock()
}

func (m *FakeMedia) Offers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offers
}
