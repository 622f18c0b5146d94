// Package media provides synthetic capture devices. Cameras come from
// configuration; any of them can be marked unavailable to simulate a
// failed capture.
package media

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

const (
	DefaultCameraID     = "default-camera"
	DefaultMicrophoneID = "default-microphone"
)

type Camera struct {
	ID          string
	Label       string
	Unavailable bool
}

type Options struct {
	Cameras []Camera
	// PumpInterval makes every captured track emit dummy RTP packets this
	// often. Zero keeps tracks silent.
	PumpInterval time.Duration
}

// Devices implements core.MediaDevices.
type Devices struct {
	cameras []Camera
	pump    time.Duration

	mu   sync.Mutex
	live []*Track
}

var _ core.MediaDevices = (*Devices)(nil)

func NewDevices(opts Options) *Devices {
	cams := slices.Clone(opts.Cameras)
	if len(cams) == 0 {
		cams = []Camera{{ID: DefaultCameraID, Label: "Default camera"}}
	}
	return &Devices{cameras: cams, pump: opts.PumpInterval}
}

func (d *Devices) EnumerateDevices(ctx context.Context) ([]domain.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.DeviceInfo, 0, len(d.cameras)+1)
	for _, c := range d.cameras {
		out = append(out, domain.DeviceInfo{ID: c.ID, Label: c.Label, Kind: domain.DeviceKindVideoInput})
	}
	out = append(out, domain.DeviceInfo{ID: DefaultMicrophoneID, Label: "Default microphone", Kind: domain.DeviceKindAudioInput})
	return out, nil
}

// GetUserMedia captures an audio track (if asked) and a video track from the
// selected camera, all under a fresh stream id.
func (d *Devices) GetUserMedia(ctx context.Context, c domain.Constraints) ([]core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMediaAcquisitionFailed, err)
	}
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: neither audio nor video requested", core.ErrMediaAcquisitionFailed)
	}

	var cam Camera
	if c.Video {
		var err error
		if cam, err = d.camera(c.VideoDeviceID); err != nil {
			return nil, err
		}
	}

	stream := uuid.NewString()
	var tracks []*Track
	if c.Audio {
		t, err := newTrack(domain.TrackKindAudio, uuid.NewString(), stream, "Default microphone", DefaultMicrophoneID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrMediaAcquisitionFailed, err)
		}
		tracks = append(tracks, t)
	}
	if c.Video {
		t, err := newTrack(domain.TrackKindVideo, uuid.NewString(), stream, cam.Label, cam.ID)
		if err != nil {
			for _, prev := range tracks {
				prev.Stop()
			}
			return nil, fmt.Errorf("%w: %w", core.ErrMediaAcquisitionFailed, err)
		}
		tracks = append(tracks, t)
	}

	out := make([]core.LocalTrack, 0, len(tracks))
	for _, t := range tracks {
		if d.pump > 0 {
			t.pump(context.Background(), d.pump)
		}
		out = append(out, t)
	}

	d.mu.Lock()
	d.live = append(d.live, tracks...)
	d.mu.Unlock()

	log.Info().
		Str("module", "media").
		Str("stream_id", stream).
		Str("camera", cam.ID).
		Int("tracks", len(out)).
		Msg("media captured")
	return out, nil
}

// Live reports tracks handed out and not yet stopped.
func (d *Devices) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live = slices.DeleteFunc(d.live, (*Track).Stopped)
	return len(d.live)
}

func (d *Devices) camera(id string) (Camera, error) {
	if id == "" {
		id = d.cameras[0].ID
	}
	i := slices.IndexFunc(d.cameras, func(c Camera) bool { return c.ID == id })
	if i < 0 {
		return Camera{}, fmt.Errorf("%w: camera %q not found", core.ErrMediaAcquisitionFailed, id)
	}
	if d.cameras[i].Unavailable {
		return Camera{}, fmt.Errorf("%w: camera %q is unavailable", core.ErrMediaAcquisitionFailed, id)
	}
	return d.cameras[i], nil
}
