package sfu

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

func (s TrackState) String() string {
	switch s {
	case TrackStateMuted:
		return "muted"
	case TrackStateDelete:
		return "delete"
	default:
		return "ok"
	}
}

// OutTrack is one subscriber's copy of a speaker's track.
// State is read by the relay loop and written by the orchestrator.
type OutTrack struct {
	Track *webrtc.TrackLocalStaticRTP
	state atomic.Int32
}

func NewOutTrack(track *webrtc.TrackLocalStaticRTP) *OutTrack {
	return &OutTrack{Track: track}
}

func (ot *OutTrack) GetState() TrackState { return TrackState(ot.state.Load()) }

func (ot *OutTrack) MarkOk()     { ot.state.Store(int32(TrackStateOk)) }
func (ot *OutTrack) MarkMuted()  { ot.state.Store(int32(TrackStateMuted)) }
func (ot *OutTrack) MarkDelete() { ot.state.Store(int32(TrackStateDelete)) }
