package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Relay fans one remote track out to the subscribers of its speaker.
type Relay struct {
	Src *webrtc.TrackRemote

	mu        sync.RWMutex
	outTracks map[core.SessionID]*OutTrack

	cancel context.CancelFunc
}

func NewRelay(src *webrtc.TrackRemote, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:       src,
		outTracks: make(map[core.SessionID]*OutTrack),
		cancel:    cancel,
	}
}

// loop reads RTP packets from the source track and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("relay source ended")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	var dirty map[core.SessionID]*OutTrack
	for dstSID, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateMuted:
			continue
		case TrackStateOk:
			err := ot.Track.WriteRTP(pkt)
			if err == nil {
				continue
			}
			logger.Warn().Err(err).Str("dst_sid", string(dstSID)).Msg("relay write RTP error, marking outtrack as delete")
			ot.MarkDelete()
		case TrackStateDelete:
		}
		if dirty == nil {
			dirty = make(map[core.SessionID]*OutTrack)
		}
		dirty[dstSID] = ot
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

// cleanupDeleted drops out tracks that are still the ones seen as deleted;
// a subscriber that resubscribed in between keeps its new track.
func (r *Relay) cleanupDeleted(dirty map[core.SessionID]*OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, ot := range dirty {
		if r.outTracks[sid] == ot {
			delete(r.outTracks, sid)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(dst core.SessionID, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.outTracks[dst]; ok {
		old.MarkDelete()
	}
	r.outTracks[dst] = ot
}

func (r *Relay) outTrack(dst core.SessionID) (*OutTrack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ot, ok := r.outTracks[dst]
	return ot, ok
}

// Subscribers counts out tracks that still receive packets.
func (r *Relay) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, ot := range r.outTracks {
		if ot.GetState() != TrackStateDelete {
			n++
		}
	}
	return n
}
