package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/loopcall/internal/domain"
)

var (
	// ErrCapabilityRejected means the peer connection refused an operation,
	// e.g. a malformed description or a transition the current state forbids.
	ErrCapabilityRejected = errors.New("capability rejected")
	// ErrClosed means the operation targeted a torn-down peer connection.
	ErrClosed = errors.New("peer connection closed")
	// ErrMediaAcquisitionFailed means no camera or microphone could be opened.
	ErrMediaAcquisitionFailed = errors.New("media acquisition failed")
)

// Op names a peer connection operation.
type Op string

const (
	OpCreateOffer          Op = "createOffer"
	OpCreateAnswer         Op = "createAnswer"
	OpSetLocalDescription  Op = "setLocalDescription"
	OpSetRemoteDescription Op = "setRemoteDescription"
	OpAddICECandidate      Op = "addIceCandidate"
	OpAddTrack             Op = "addTrack"
	OpRemoveTrack          Op = "removeTrack"
)

// Step is a position in the offer/answer procedure.
type Step int

const (
	StepNone Step = iota
	StepCreateOffer
	StepSetLocalOffer
	StepSetRemoteOffer
	StepCreateAnswer
	StepSetLocalAnswer
	StepSetRemoteAnswer
)

func (s Step) String() string {
	switch s {
	case StepCreateOffer:
		return "a:create-offer"
	case StepSetLocalOffer:
		return "b:set-local-offer"
	case StepSetRemoteOffer:
		return "c:set-remote-offer"
	case StepCreateAnswer:
		return "d:create-answer"
	case StepSetLocalAnswer:
		return "e:set-local-answer"
	case StepSetRemoteAnswer:
		return "f:set-remote-answer"
	default:
		return "none"
	}
}

// NegotiationError is returned by every failed peer connection operation.
// Err always wraps one of the kind sentinels above.
type NegotiationError struct {
	Side domain.Side
	Op   Op
	Step Step
	Err  error
}

func (e *NegotiationError) Error() string {
	if e.Step != StepNone {
		return fmt.Sprintf("negotiation step %s (%s on %s): %v", e.Step, e.Op, e.Side, e.Err)
	}
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Side, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// Kind returns the sentinel the error is classified under.
func (e *NegotiationError) Kind() error {
	switch {
	case errors.Is(e.Err, ErrClosed):
		return ErrClosed
	case errors.Is(e.Err, ErrMediaAcquisitionFailed):
		return ErrMediaAcquisitionFailed
	default:
		return ErrCapabilityRejected
	}
}

// Rejected classifies a raw capability error. Errors that already carry a
// kind are returned unchanged.
func Rejected(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrCapabilityRejected) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCapabilityRejected, err)
}
