package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is the optional peer media leg of a session.
// It is orthogonal to document state.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
	AddICECandidate(webrtc.ICECandidateInit) error
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// ApplyAnswer finishes a server initiated renegotiation.
	ApplyAnswer(webrtc.SessionDescription) error
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error)
	OnClosed(func())
}
