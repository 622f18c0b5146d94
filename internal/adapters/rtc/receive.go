package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// receiveStats counts RTP received on remote tracks. Nothing renders the
// media; reading it keeps pion's receive buffers moving.
type receiveStats struct {
	packets atomic.Uint64

	mu     sync.Mutex
	byKind map[string]uint64
}

func newReceiveStats() *receiveStats {
	return &receiveStats{byKind: make(map[string]uint64)}
}

// consume reads packets from src until ctx ends or the track goes away.
func (s *receiveStats) consume(ctx context.Context, src *webrtc.TrackRemote, logger *zerolog.Logger) {
	kind := src.Kind().String()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Str("track_id", src.ID()).Msg("receiver ctx done")
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Str("track_id", src.ID()).Msg("receiver read RTP stopped")
			return
		}
		s.record(kind, pkt)
	}
}

func (s *receiveStats) record(kind string, pkt *rtp.Packet) {
	if pkt == nil {
		return
	}
	s.packets.Add(1)
	s.mu.Lock()
	s.byKind[kind]++
	s.mu.Unlock()
}

func (s *receiveStats) total() uint64 { return s.packets.Load() }

func (s *receiveStats) kind(k string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKind[k]
}
