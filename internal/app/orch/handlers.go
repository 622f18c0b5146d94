package orch

import (
	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

func (s *session) onSignalingStateChanged(side domain.Side, state domain.SignalingState) {
	s.logger.Debug().Str("side", side.String()).Str("state", state.String()).Msg("signaling state")
	if state != domain.SignalingStateStable {
		return
	}
	// Candidates the other side found while this one was mid-negotiation.
	n, err := s.buffers[side].DrainInto(s.neg[side])
	if err != nil {
		s.logger.Warn().Err(err).Str("side", side.String()).Msg("buffered candidate rejected")
	}
	if n > 0 {
		s.logger.Info().Str("side", side.String()).Int("candidates", n).Msg("drained buffered candidates")
	}
}

func (s *session) onIceCandidate(from domain.Side, c domain.Candidate) {
	to := from.Opposite()
	dst := s.neg[to]
	if state := dst.SignalingState(); state != domain.SignalingStateStable {
		s.logger.Debug().Str("from", from.String()).Str("to_state", state.String()).Msg("destination not stable, buffer candidate")
		s.buffers[to].Offer(c)
		return
	}
	if err := dst.AddICECandidate(c); err != nil {
		s.logger.Warn().Err(err).Str("from", from.String()).Msg("candidate rejected")
	}
}

func (s *session) onNegotiationNeeded(side domain.Side) {
	s.logger.Info().Str("side", side.String()).Msg("negotiation needed")
	s.record(s.negotiate(side, side.Opposite()))
}

func (s *session) onTrackArrived(side domain.Side, ev core.TrackEvent) {
	logger := s.logger.With().
		Str("side", side.String()).
		Str("track_id", ev.Track.ID()).
		Str("kind", string(ev.Track.Kind())).
		Str("stream_id", ev.Stream).
		Logger()
	if side != domain.SideRemote {
		logger.Debug().Msg("track arrived on local side, not surfaced")
		return
	}
	if s.surface.Apply(ev) {
		logger.Info().Msg("remote surface updated")
	}
}

func (s *session) record(err error) {
	if err != nil {
		s.lastErr = err
		s.logger.Error().Err(err).Msg("negotiation failed")
		return
	}
	s.lastErr = nil
	s.negotiations++
}
