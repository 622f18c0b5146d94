package app

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Watcher receives the events of one side, tagged with that side.
type Watcher interface {
	SignalingStateChanged(side domain.Side, state domain.SignalingState)
	IceCandidateDiscovered(side domain.Side, c domain.Candidate)
	NegotiationNeeded(side domain.Side)
	TrackArrived(side domain.Side, ev core.TrackEvent)
}

// Negotiator wraps the peer connection of one side and exposes the
// signaling primitives the coordinator sequences. It never touches candidate
// buffers or session state.
type Negotiator struct {
	side   domain.Side
	pc     core.PeerConnection
	closed atomic.Bool
}

func NewNegotiator(side domain.Side, pc core.PeerConnection) *Negotiator {
	return &Negotiator{side: side, pc: pc}
}

func (n *Negotiator) Side() domain.Side { return n.side }

// Watch forwards every capability event to w.
func (n *Negotiator) Watch(w Watcher) {
	n.pc.OnSignalingStateChange(func(s domain.SignalingState) {
		w.SignalingStateChanged(n.side, s)
	})
	n.pc.OnICECandidate(func(c domain.Candidate) {
		w.IceCandidateDiscovered(n.side, c)
	})
	n.pc.OnNegotiationNeeded(func() {
		w.NegotiationNeeded(n.side)
	})
	n.pc.OnTrack(func(ev core.TrackEvent) {
		w.TrackArrived(n.side, ev)
	})
}

func (n *Negotiator) CreateOffer() (domain.Description, error) {
	if err := n.guard(core.OpCreateOffer); err != nil {
		return domain.Description{}, err
	}
	offer, err := n.pc.CreateOffer()
	if err != nil {
		return domain.Description{}, n.fail(core.OpCreateOffer, err)
	}
	return offer, nil
}

func (n *Negotiator) CreateAnswer() (domain.Description, error) {
	if err := n.guard(core.OpCreateAnswer); err != nil {
		return domain.Description{}, err
	}
	answer, err := n.pc.CreateAnswer()
	if err != nil {
		return domain.Description{}, n.fail(core.OpCreateAnswer, err)
	}
	return answer, nil
}

func (n *Negotiator) SetLocalDescription(d domain.Description) error {
	if err := n.guard(core.OpSetLocalDescription); err != nil {
		return err
	}
	if err := n.pc.SetLocalDescription(d); err != nil {
		return n.fail(core.OpSetLocalDescription, err)
	}
	return nil
}

func (n *Negotiator) SetRemoteDescription(d domain.Description) error {
	if err := n.guard(core.OpSetRemoteDescription); err != nil {
		return err
	}
	if err := n.pc.SetRemoteDescription(d); err != nil {
		return n.fail(core.OpSetRemoteDescription, err)
	}
	return nil
}

func (n *Negotiator) AddICECandidate(c domain.Candidate) error {
	if err := n.guard(core.OpAddICECandidate); err != nil {
		return err
	}
	if err := n.pc.AddICECandidate(c); err != nil {
		return n.fail(core.OpAddICECandidate, err)
	}
	return nil
}

func (n *Negotiator) AddTrack(t core.MediaTrack, streamHint string) (domain.SenderRef, error) {
	if err := n.guard(core.OpAddTrack); err != nil {
		return domain.SenderRef{}, err
	}
	ref, err := n.pc.AddTrack(t, streamHint)
	if err != nil {
		return domain.SenderRef{}, n.fail(core.OpAddTrack, err)
	}
	return ref, nil
}

func (n *Negotiator) RemoveTrack(ref domain.SenderRef) error {
	if err := n.guard(core.OpRemoveTrack); err != nil {
		return err
	}
	if err := n.pc.RemoveTrack(ref); err != nil {
		return n.fail(core.OpRemoveTrack, err)
	}
	return nil
}

func (n *Negotiator) Senders() []domain.SenderRef {
	if n.closed.Load() {
		return nil
	}
	return n.pc.Senders()
}

func (n *Negotiator) SignalingState() domain.SignalingState {
	if n.closed.Load() {
		return domain.SignalingStateClosed
	}
	return n.pc.SignalingState()
}

// Close closes the peer connection. Operations after Close fail with
// core.ErrClosed without reaching the capability.
func (n *Negotiator) Close() error {
	if n.closed.Swap(true) {
		return nil
	}
	err := n.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "app.negotiator").Str("side", n.side.String()).Msg("close error")
	} else {
		log.Info().Str("module", "app.negotiator").Str("side", n.side.String()).Msg("closed")
	}
	return err
}

func (n *Negotiator) Closed() bool { return n.closed.Load() }

func (n *Negotiator) guard(op core.Op) error {
	if n.closed.Load() {
		return &core.NegotiationError{Side: n.side, Op: op, Err: core.ErrClosed}
	}
	return nil
}

func (n *Negotiator) fail(op core.Op, err error) error {
	// A call racing with Close reports the close, whatever the capability said.
	if n.closed.Load() && !errors.Is(err, core.ErrClosed) {
		err = fmt.Errorf("%w: %w", core.ErrClosed, err)
	}
	return &core.NegotiationError{Side: n.side, Op: op, Err: core.Rejected(err)}
}
