package sfu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoRelay = errors.New("no relay for speaker")

// RelayManager owns one relay per speaking session.
// Relay loops run on their own goroutines; the manager is safe for concurrent use.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[core.SessionID]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[core.SessionID]*Relay),
	}
}

// StartRelay creates a new Relay for the given speaker SID and starts its loop.
func (m *RelayManager) StartRelay(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote) {
	logger := log.With().
		Str("module", "sfu.relay").
		Str("sid", string(sid)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(track, cancel)

	m.mu.Lock()
	if old, ok := m.relays[sid]; ok {
		logger.Info().Msg("replacing existing relay for sid")
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[sid] = relay
	m.mu.Unlock()

	logger.Info().Str("kind", track.Kind().String()).Msg("starting relay loop")

	go relay.loop(relayCtx, &logger)
}

// Subscribe mirrors the speaker's source into a new local track on dst.
// The caller renegotiates dst afterwards.
func (m *RelayManager) Subscribe(srcSID, dstSID core.SessionID, dst core.MediaConnection) error {
	m.mu.RLock()
	relay, ok := m.relays[srcSID]
	m.mu.RUnlock()
	if !ok {
		return ErrNoRelay
	}

	src := relay.Src
	local, err := webrtc.NewTrackLocalStaticRTP(src.Codec().RTPCodecCapability, src.ID(), string(srcSID))
	if err != nil {
		return fmt.Errorf("new local track: %w", err)
	}
	sender, err := dst.AddLocalTrack(local)
	if err != nil {
		return fmt.Errorf("add local track: %w", err)
	}
	go drainRTCP(sender)

	if !m.AddSubscriber(srcSID, dstSID, local) {
		return ErrNoRelay
	}
	log.Info().Str("module", "sfu.relay").Str("src", string(srcSID)).Str("dst", string(dstSID)).Msg("subscribed")
	return nil
}

// drainRTCP reads incoming RTCP so interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	if sender == nil {
		return
	}
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// AddSubscriber attaches an OutTrack to the relay of srcSID for dstSID.
func (m *RelayManager) AddSubscriber(srcSID, dstSID core.SessionID, localTrack *webrtc.TrackLocalStaticRTP) bool {
	m.mu.RLock()
	relay, ok := m.relays[srcSID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.AddOutTrack(dstSID, NewOutTrack(localTrack))
	return true
}

// MarkSubscriberDelete marks subscriber's OutTrack as TrackStateDelete.
func (m *RelayManager) MarkSubscriberDelete(srcSID, dstSID core.SessionID) {
	m.mu.RLock()
	relay, ok := m.relays[srcSID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if ot, ok := relay.outTrack(dstSID); ok {
		ot.MarkDelete()
	}
}

// SetMuted pauses or resumes forwarding from srcSID to dstSID.
func (m *RelayManager) SetMuted(srcSID, dstSID core.SessionID, muted bool) bool {
	m.mu.RLock()
	relay, ok := m.relays[srcSID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	ot, ok := relay.outTrack(dstSID)
	if !ok || ot.GetState() == TrackStateDelete {
		return false
	}
	if muted {
		ot.MarkMuted()
	} else {
		ot.MarkOk()
	}
	return true
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(srcSID core.SessionID) {
	m.mu.Lock()
	relay, ok := m.relays[srcSID]
	if ok {
		delete(m.relays, srcSID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	if relay.cancel != nil {
		relay.cancel()
	}
}

// StopAll stops every relay. Used on shutdown.
func (m *RelayManager) StopAll() {
	m.mu.Lock()
	relays := m.relays
	m.relays = make(map[core.SessionID]*Relay)
	m.mu.Unlock()
	for _, relay := range relays {
		relay.markAllDelete()
		if relay.cancel != nil {
			relay.cancel()
		}
	}
}

// HasRelay reports whether a relay exists for sid.
func (m *RelayManager) HasRelay(sid core.SessionID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[sid]
	return ok
}
