// Package rtc backs core.PeerConnection with a pion PeerConnection.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

var (
	ErrUnsupportedTrack = errors.New("track cannot be sent over a pion peer connection")
	ErrUnknownSender    = errors.New("unknown sender")
)

// PionTrack is implemented by local tracks that can feed a pion sender.
type PionTrack interface {
	PionTrack() webrtc.TrackLocal
}

type senderEntry struct {
	ref    domain.SenderRef
	sender *webrtc.RTPSender
}

type Connection struct {
	side   domain.Side
	pc     *webrtc.PeerConnection
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	senders []senderEntry
	stats   *receiveStats
}

var _ core.PeerConnection = (*Connection)(nil)

func newConnection(side domain.Side, pc *webrtc.PeerConnection) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		side:   side,
		pc:     pc,
		logger: log.With().Str("module", "webrtc").Str("side", side.String()).Logger(),
		ctx:    ctx,
		cancel: cancel,
		stats:  newReceiveStats(),
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
	})
	return c
}

func (c *Connection) CreateOffer() (domain.Description, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.Description{}, c.classify(err)
	}
	return fromPion(offer), nil
}

func (c *Connection) CreateAnswer() (domain.Description, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.Description{}, c.classify(err)
	}
	return fromPion(answer), nil
}

func (c *Connection) SetLocalDescription(d domain.Description) error {
	return c.classify(c.pc.SetLocalDescription(toPion(d)))
}

func (c *Connection) SetRemoteDescription(d domain.Description) error {
	return c.classify(c.pc.SetRemoteDescription(toPion(d)))
}

func (c *Connection) AddICECandidate(cand domain.Candidate) error {
	return c.classify(c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	}))
}

// AddTrack sends track on a new sender. The stream grouping is carried by
// the pion track itself, so streamHint is only logged.
func (c *Connection) AddTrack(track core.MediaTrack, streamHint string) (domain.SenderRef, error) {
	pt, ok := track.(PionTrack)
	if !ok {
		return domain.SenderRef{}, fmt.Errorf("%w: %s", ErrUnsupportedTrack, track.ID())
	}
	sender, err := c.pc.AddTrack(pt.PionTrack())
	if err != nil {
		return domain.SenderRef{}, c.classify(err)
	}
	go drainRTCP(c.ctx, sender)

	ref := domain.SenderRef{ID: uuid.NewString(), TrackID: track.ID(), Kind: track.Kind()}
	c.mu.Lock()
	c.senders = append(c.senders, senderEntry{ref: ref, sender: sender})
	c.mu.Unlock()

	c.logger.Debug().
		Str("track_id", track.ID()).
		Str("stream_id", streamHint).
		Str("sender_id", ref.ID).
		Msg("sender added")
	return ref, nil
}

func (c *Connection) RemoveTrack(ref domain.SenderRef) error {
	c.mu.Lock()
	i := slices.IndexFunc(c.senders, func(s senderEntry) bool { return s.ref.ID == ref.ID })
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSender, ref.ID)
	}
	entry := c.senders[i]
	c.mu.Unlock()

	if err := c.pc.RemoveTrack(entry.sender); err != nil {
		return c.classify(err)
	}

	c.mu.Lock()
	c.senders = slices.DeleteFunc(c.senders, func(s senderEntry) bool { return s.ref.ID == ref.ID })
	c.mu.Unlock()
	return nil
}

func (c *Connection) Senders() []domain.SenderRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.SenderRef, 0, len(c.senders))
	for _, s := range c.senders {
		out = append(out, s.ref)
	}
	return out
}

func (c *Connection) SignalingState() domain.SignalingState {
	return domain.ParseSignalingState(c.pc.SignalingState().String())
}

func (c *Connection) OnSignalingStateChange(fn func(domain.SignalingState)) {
	c.pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		fn(domain.ParseSignalingState(s.String()))
	})
}

func (c *Connection) OnICECandidate(fn func(domain.Candidate)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if cand == nil {
			c.logger.Debug().Msg("ICE gathering complete")
			return
		}
		init := cand.ToJSON()
		fn(domain.Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (c *Connection) OnNegotiationNeeded(fn func()) {
	c.pc.OnNegotiationNeeded(fn)
}

func (c *Connection) OnTrack(fn func(core.TrackEvent)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")

		rt := &remoteTrack{track: track}
		fn(core.TrackEvent{Track: rt, Stream: rt.StreamID()})
		go c.stats.consume(c.ctx, track, &c.logger)
	})
}

// PacketsReceived reports RTP packets read from remote tracks so far.
func (c *Connection) PacketsReceived() uint64 { return c.stats.total() }

func (c *Connection) Close() error {
	c.cancel()
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}

// classify maps pion's closed error onto core.ErrClosed.
func (c *Connection) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, webrtc.ErrConnectionClosed) || c.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return fmt.Errorf("%w: %w", core.ErrClosed, err)
	}
	return err
}

func fromPion(d webrtc.SessionDescription) domain.Description {
	return domain.Description{Type: domain.ParseSDPType(d.Type.String()), SDP: d.SDP}
}

func toPion(d domain.Description) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type.String()), SDP: d.SDP}
}

// drainRTCP keeps the sender's interceptors running; pion stalls otherwise.
func drainRTCP(ctx context.Context, sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (t *remoteTrack) ID() string { return t.track.ID() }
func (t *remoteTrack) Kind() domain.TrackKind {
	return domain.TrackKind(t.track.Kind().String())
}
func (t *remoteTrack) Label() string { return t.track.Codec().MimeType }

// StreamID is empty for tracks sent without a stream ("-" in msid).
func (t *remoteTrack) StreamID() string {
	if id := t.track.StreamID(); id != "-" {
		return id
	}
	return ""
}
