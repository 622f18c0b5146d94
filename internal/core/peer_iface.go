package core

import "github.com/dkeye/loopcall/internal/domain"

// PeerConnection is the capability one side of the simulation drives. The
// implementation owns SDP, ICE and media transport; the core only calls it
// and reacts to its events.
//
// Event callbacks may be invoked from any goroutine, including synchronously
// from within one of the methods below. Handlers must not block.
type PeerConnection interface {
	CreateOffer() (domain.Description, error)
	CreateAnswer() (domain.Description, error)
	// SetLocalDescription returns once the description was accepted; the
	// resulting signaling state change is reported through OnSignalingStateChange.
	SetLocalDescription(domain.Description) error
	SetRemoteDescription(domain.Description) error
	AddICECandidate(domain.Candidate) error

	// AddTrack attaches a local track as a new sender. streamHint names the
	// stream the track should be grouped under on the far side.
	AddTrack(track MediaTrack, streamHint string) (domain.SenderRef, error)
	RemoveTrack(domain.SenderRef) error
	Senders() []domain.SenderRef

	// SignalingState is a point-in-time read of the authoritative state.
	SignalingState() domain.SignalingState

	OnSignalingStateChange(func(domain.SignalingState))
	OnICECandidate(func(domain.Candidate))
	OnNegotiationNeeded(func())
	OnTrack(func(TrackEvent))

	// Close tears the connection down. Subsequent calls fail with ErrClosed.
	Close() error
}

// TrackEvent reports a track that arrived through negotiation.
type TrackEvent struct {
	Track MediaTrack
	// Stream is the id of the stream the sender grouped the track under,
	// empty when the track arrived ungrouped.
	Stream string
}

// PeerFactory builds the capability for one side of a session.
type PeerFactory interface {
	NewPeerConnection(side domain.Side) (PeerConnection, error)
}
