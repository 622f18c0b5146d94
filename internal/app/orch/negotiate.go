package orch

import (
	"errors"

	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

// negotiate runs one offer/answer exchange with from as the offerer. Each
// step starts only after the previous one succeeded; a failure is returned
// tagged with its step and whatever was already applied stays applied.
func (s *session) negotiate(from, to domain.Side) error {
	initiator, receiver := s.neg[from], s.neg[to]

	offer, err := initiator.CreateOffer()
	if err != nil {
		return atStep(err, core.StepCreateOffer)
	}
	if err := initiator.SetLocalDescription(offer); err != nil {
		return atStep(err, core.StepSetLocalOffer)
	}
	if err := receiver.SetRemoteDescription(offer); err != nil {
		return atStep(err, core.StepSetRemoteOffer)
	}
	answer, err := receiver.CreateAnswer()
	if err != nil {
		return atStep(err, core.StepCreateAnswer)
	}
	if err := receiver.SetLocalDescription(answer); err != nil {
		return atStep(err, core.StepSetLocalAnswer)
	}
	if err := initiator.SetRemoteDescription(answer); err != nil {
		return atStep(err, core.StepSetRemoteAnswer)
	}

	s.logger.Info().Str("offerer", from.String()).Msg("negotiation complete")
	return nil
}

func atStep(err error, step core.Step) error {
	var ne *core.NegotiationError
	if errors.As(err, &ne) {
		ne.Step = step
		return ne
	}
	return &core.NegotiationError{Step: step, Err: core.Rejected(err)}
}
