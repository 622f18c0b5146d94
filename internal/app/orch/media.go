package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

// addTracks acquires media before touching the senders, so a failed
// acquisition leaves the current track set as it was.
func (s *session) addTracks(ctx context.Context, constraints domain.Constraints) error {
	tracks, err := s.media.GetUserMedia(ctx, constraints)
	if err != nil {
		if !errors.Is(err, core.ErrMediaAcquisitionFailed) {
			err = fmt.Errorf("%w: %w", core.ErrMediaAcquisitionFailed, err)
		}
		return err
	}

	local := s.neg[domain.SideLocal]
	for i, t := range tracks {
		ref, err := local.AddTrack(t, t.StreamID())
		if err != nil {
			for _, rest := range tracks[i:] {
				rest.Stop()
			}
			return err
		}
		s.locals[ref.ID] = t
		s.logger.Info().
			Str("track_id", t.ID()).
			Str("kind", string(t.Kind())).
			Str("stream_id", t.StreamID()).
			Msg("local track added")
	}
	return nil
}

// removeTracks drops every local sender. Nothing happens on an empty set.
func (s *session) removeTracks() error {
	local := s.neg[domain.SideLocal]
	senders := local.Senders()
	if len(senders) == 0 {
		return nil
	}
	var errs []error
	for _, ref := range senders {
		if err := local.RemoveTrack(ref); err != nil {
			errs = append(errs, err)
			continue
		}
		if t, ok := s.locals[ref.ID]; ok {
			t.Stop()
			delete(s.locals, ref.ID)
		}
		s.logger.Info().Str("track_id", ref.TrackID).Msg("local track removed")
	}
	return errors.Join(errs...)
}
