package orch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/app"
	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

// session is one generation: two negotiators, the buffers between them and
// the remote surface. Everything except closed and the mailbox is touched by
// the dispatch goroutine only.
type session struct {
	gen    int
	owner  *Coordinator
	media  core.MediaDevices
	logger zerolog.Logger

	neg     [2]*app.Negotiator
	buffers [2]*app.CandidateBuffer // indexed by destination side
	surface app.RemoteSurface
	locals  map[string]core.LocalTrack // sender id -> captured track

	negotiations int
	lastErr      error

	mailbox *app.Mailbox[Event]
	cancel  context.CancelFunc
	ctx     context.Context
	done    chan struct{}
	closed  atomic.Bool
}

func newSession(owner *Coordinator, gen int, local, remote core.PeerConnection) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		gen:     gen,
		owner:   owner,
		media:   owner.Media,
		logger:  log.With().Str("module", "orch").Int("generation", gen).Logger(),
		locals:  make(map[string]core.LocalTrack),
		mailbox: app.NewMailbox[Event](),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.neg[domain.SideLocal] = app.NewNegotiator(domain.SideLocal, local)
	s.neg[domain.SideRemote] = app.NewNegotiator(domain.SideRemote, remote)
	s.buffers[domain.SideLocal] = app.NewCandidateBuffer(domain.SideRemote, domain.SideLocal)
	s.buffers[domain.SideRemote] = app.NewCandidateBuffer(domain.SideLocal, domain.SideRemote)

	for _, n := range s.neg {
		n.Watch(s)
	}
	go s.run()
	return s
}

func (s *session) run() {
	defer close(s.done)
	defer s.teardown()

	for {
		ev, ok := s.mailbox.Pop(s.ctx)
		if !ok {
			return
		}
		s.dispatch(ev)
		s.publish()
	}
}

func (s *session) dispatch(ev Event) {
	switch ev.Kind {
	case EventSignalingStateChanged:
		s.onSignalingStateChanged(ev.Side, ev.State)
	case EventIceCandidateDiscovered:
		s.onIceCandidate(ev.Side, ev.Candidate)
	case EventNegotiationNeeded:
		s.onNegotiationNeeded(ev.Side)
	case EventTrackArrived:
		s.onTrackArrived(ev.Side, ev.Track)
	case eventCommand:
		ev.cmd.done <- ev.cmd.fn()
	}
}

// do runs fn on the dispatch goroutine and waits for its result.
func (s *session) do(ctx context.Context, name string, fn func() error) error {
	cmd := &command{name: name, fn: fn, done: make(chan error, 1)}
	if !s.mailbox.Push(Event{Kind: eventCommand, cmd: cmd}) {
		return s.closedErr()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settle returns once the mailbox was observed empty from inside the loop,
// i.e. every event caused by earlier work has been handled.
func (s *session) settle(ctx context.Context) error {
	for {
		empty := false
		if err := s.do(ctx, "settle", func() error {
			empty = s.mailbox.Len() == 0
			return nil
		}); err != nil {
			return err
		}
		if empty {
			return nil
		}
	}
}

// close tears the generation down without waiting for the loop: in-flight
// calls on the closed handles fail fast, queued commands fail with ErrClosed.
func (s *session) close() {
	if s.closed.Swap(true) {
		return
	}
	rest := s.mailbox.Close()
	for _, n := range s.neg {
		_ = n.Close()
	}
	s.cancel()
	for _, ev := range rest {
		if ev.cmd != nil {
			ev.cmd.done <- s.closedErr()
		}
	}
	s.logger.Info().Int("dropped_events", len(rest)).Msg("session closed")
}

func (s *session) teardown() {
	for id, t := range s.locals {
		t.Stop()
		delete(s.locals, id)
	}
	dropped := s.buffers[domain.SideLocal].Clear() + s.buffers[domain.SideRemote].Clear()
	if dropped > 0 {
		s.logger.Debug().Int("candidates", dropped).Msg("dropped buffered candidates")
	}
	s.publish()
}

func (s *session) closedErr() error {
	return fmt.Errorf("session %d: %w", s.gen, core.ErrClosed)
}

func (s *session) snapshot() app.SessionState {
	st := app.SessionState{
		Generation:       s.gen,
		Closed:           s.closed.Load(),
		LocalSignaling:   s.neg[domain.SideLocal].SignalingState(),
		RemoteSignaling:  s.neg[domain.SideRemote].SignalingState(),
		RemoteStream:     s.surface.Stream(),
		RemoteTracks:     s.surface.Tracks(),
		BufferedToLocal:  s.buffers[domain.SideLocal].Len(),
		BufferedToRemote: s.buffers[domain.SideRemote].Len(),
		Negotiations:     s.negotiations,
	}
	for _, ref := range s.neg[domain.SideLocal].Senders() {
		if t, ok := s.locals[ref.ID]; ok {
			st.LocalTracks = append(st.LocalTracks, core.Info(t))
			continue
		}
		st.LocalTracks = append(st.LocalTracks, domain.TrackInfo{ID: ref.TrackID, Kind: ref.Kind})
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *session) publish() {
	s.owner.publishFrom(s, s.snapshot())
}

// The app.Watcher side: capability callbacks only enqueue.

func (s *session) SignalingStateChanged(side domain.Side, state domain.SignalingState) {
	s.push(Event{Kind: EventSignalingStateChanged, Side: side, State: state})
}

func (s *session) IceCandidateDiscovered(side domain.Side, c domain.Candidate) {
	s.push(Event{Kind: EventIceCandidateDiscovered, Side: side, Candidate: c})
}

func (s *session) NegotiationNeeded(side domain.Side) {
	s.push(Event{Kind: EventNegotiationNeeded, Side: side})
}

func (s *session) TrackArrived(side domain.Side, ev core.TrackEvent) {
	s.push(Event{Kind: EventTrackArrived, Side: side, Track: ev})
}

func (s *session) push(ev Event) {
	if !s.mailbox.Push(ev) {
		s.logger.Debug().Str("event", ev.Kind.String()).Str("side", ev.Side.String()).Msg("event after close dropped")
	}
}
