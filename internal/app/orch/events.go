package orch

import (
	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

type EventKind int

const (
	EventSignalingStateChanged EventKind = iota + 1
	EventIceCandidateDiscovered
	EventNegotiationNeeded
	EventTrackArrived
	eventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventSignalingStateChanged:
		return "signaling-state-changed"
	case EventIceCandidateDiscovered:
		return "ice-candidate-discovered"
	case EventNegotiationNeeded:
		return "negotiation-needed"
	case EventTrackArrived:
		return "track-arrived"
	case eventCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Event is one entry of the session mailbox. Only the fields belonging to
// Kind are set.
type Event struct {
	Kind      EventKind
	Side      domain.Side
	State     domain.SignalingState
	Candidate domain.Candidate
	Track     core.TrackEvent

	cmd *command
}

// command is a consumer operation executed on the dispatch goroutine.
type command struct {
	name string
	fn   func() error
	done chan error
}
