package media

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/domain"
)

const (
	videoClockRate = 90000
	audioClockRate = 48000
)

// Track is a synthetic capture track backed by a pion static RTP track, so
// it can be sent by the pion engine as well as the memory one.
type Track struct {
	local  *webrtc.TrackLocalStaticRTP
	kind   domain.TrackKind
	label  string
	device string

	cancel  context.CancelFunc
	stopped atomic.Bool
}

func newTrack(kind domain.TrackKind, id, stream, label, device string) (*Track, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: videoClockRate}
	if kind == domain.TrackKindAudio {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audioClockRate, Channels: 2}
	}
	local, err := webrtc.NewTrackLocalStaticRTP(capability, id, stream)
	if err != nil {
		return nil, err
	}
	return &Track{local: local, kind: kind, label: label, device: device, cancel: func() {}}, nil
}

func (t *Track) ID() string                   { return t.local.ID() }
func (t *Track) Kind() domain.TrackKind       { return t.kind }
func (t *Track) StreamID() string             { return t.local.StreamID() }
func (t *Track) Label() string                { return t.label }
func (t *Track) DeviceID() string             { return t.device }
func (t *Track) PionTrack() webrtc.TrackLocal { return t.local }
func (t *Track) Stopped() bool                { return t.stopped.Load() }

// Stop ends the track. It is safe to call more than once.
func (t *Track) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	t.cancel()
	log.Debug().Str("module", "media").Str("track_id", t.ID()).Str("kind", string(t.kind)).Msg("track stopped")
}

// pump writes a dummy packet every interval until the track is stopped.
// Writes before the track is bound to a sender are dropped by pion.
func (t *Track) pump(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	step := uint32(videoClockRate / 30)
	if t.kind == domain.TrackKindAudio {
		step = audioClockRate / 50
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		pkt := &rtp.Packet{
			Header:  rtp.Header{Version: 2, Marker: true},
			Payload: []byte{0x10, 0x00, 0x00, 0x9d, 0x01, 0x2a},
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			pkt.SequenceNumber++
			pkt.Timestamp += step
			if err := t.local.WriteRTP(pkt); err != nil {
				log.Warn().Err(err).Str("module", "media").Str("track_id", t.ID()).Msg("pump write RTP error")
				return
			}
		}
	}()
}
