package app

import (
	"slices"

	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

// RemoteStream is a grouped stream exposed to the viewer.
type RemoteStream struct {
	ID     string             `json:"id"`
	Tracks []domain.TrackInfo `json:"tracks"`
}

// RemoteSurface is what the receiving peer currently shows: either the last
// grouped stream or standalone video tracks that arrived without one.
type RemoteSurface struct {
	stream *RemoteStream
	tracks []domain.TrackInfo
}

// Apply folds one track arrival into the surface and reports whether the
// surface changed. A grouped track replaces a stream with a different id and
// joins a stream with the same id. Ungrouped audio is ignored.
func (s *RemoteSurface) Apply(ev core.TrackEvent) bool {
	info := core.Info(ev.Track)
	if ev.Stream != "" {
		if s.stream == nil || s.stream.ID != ev.Stream {
			s.stream = &RemoteStream{ID: ev.Stream}
		}
		if containsTrack(s.stream.Tracks, info.ID) {
			return false
		}
		s.stream.Tracks = append(s.stream.Tracks, info)
		return true
	}
	if info.Kind != domain.TrackKindVideo || containsTrack(s.tracks, info.ID) {
		return false
	}
	s.tracks = append(s.tracks, info)
	return true
}

func (s *RemoteSurface) Stream() *RemoteStream {
	if s.stream == nil {
		return nil
	}
	return &RemoteStream{ID: s.stream.ID, Tracks: slices.Clone(s.stream.Tracks)}
}

func (s *RemoteSurface) Tracks() []domain.TrackInfo { return slices.Clone(s.tracks) }

func containsTrack(list []domain.TrackInfo, id string) bool {
	return slices.ContainsFunc(list, func(t domain.TrackInfo) bool { return t.ID == id })
}
