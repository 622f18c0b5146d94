package core

//go:generate mockgen -source=media_iface.go -destination=mock/media_mock.go -package=mock

import (
	"context"

	"github.com/dkeye/loopcall/internal/domain"
)

// MediaTrack is a captured or received media track.
type MediaTrack interface {
	ID() string
	Kind() domain.TrackKind
	StreamID() string
	Label() string
}

// LocalTrack is a track produced by a capture device. Stop releases the
// underlying source.
type LocalTrack interface {
	MediaTrack
	Stop()
}

// MediaDevices stands in for navigator.mediaDevices.
type MediaDevices interface {
	// GetUserMedia acquires the tracks selected by constraints. All tracks
	// returned from one call share a stream id.
	GetUserMedia(ctx context.Context, constraints domain.Constraints) ([]LocalTrack, error)
	EnumerateDevices(ctx context.Context) ([]domain.DeviceInfo, error)
}

// Info snapshots a track for observers.
func Info(t MediaTrack) domain.TrackInfo {
	return domain.TrackInfo{
		ID:       t.ID(),
		Kind:     t.Kind(),
		StreamID: t.StreamID(),
		Label:    t.Label(),
	}
}
