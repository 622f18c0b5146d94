// Package orch drives two peer connections through negotiation entirely
// in-process. The Coordinator is the session handle the outer layers use.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/app"
	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

var (
	ErrNotStarted     = errors.New("session not started")
	ErrAlreadyStarted = errors.New("session already started")
)

type Options struct {
	// Audio captures a microphone track together with the camera.
	Audio bool
	// AutoMedia adds local tracks right after Start.
	AutoMedia bool
}

// Coordinator owns one session generation at a time and serializes every
// consumer operation onto that generation's dispatch loop.
type Coordinator struct {
	Peers core.PeerFactory
	Media core.MediaDevices
	Opts  Options

	feed *app.StateFeed

	mu          sync.Mutex
	sess        *session
	gen         int
	constraints domain.Constraints
}

var _ app.Session = (*Coordinator)(nil)

func NewCoordinator(peers core.PeerFactory, media core.MediaDevices, opts Options) *Coordinator {
	return &Coordinator{
		Peers:       peers,
		Media:       media,
		Opts:        opts,
		feed:        app.NewStateFeed(),
		constraints: domain.Constraints{Audio: opts.Audio, Video: true},
	}
}

// Start creates both peer connections. With AutoMedia the local side then
// captures audio and video, which triggers the first negotiation.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.sess != nil && !c.sess.closed.Load() {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	s, err := c.startLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish()

	if c.Opts.AutoMedia {
		return c.AddTracks(ctx)
	}
	return nil
}

func (c *Coordinator) startLocked() (*session, error) {
	local, err := c.Peers.NewPeerConnection(domain.SideLocal)
	if err != nil {
		return nil, fmt.Errorf("create local peer connection: %w", err)
	}
	remote, err := c.Peers.NewPeerConnection(domain.SideRemote)
	if err != nil {
		_ = local.Close()
		return nil, fmt.Errorf("create remote peer connection: %w", err)
	}
	c.gen++
	c.sess = newSession(c, c.gen, local, remote)
	log.Info().Str("module", "orch").Int("generation", c.gen).Msg("session started")
	return c.sess, nil
}

// Restart tears the current session down, waits for its loop to release
// the captured tracks and starts a fresh one.
func (c *Coordinator) Restart(ctx context.Context) error {
	c.mu.Lock()
	old := c.sess
	c.mu.Unlock()
	if old != nil {
		old.close()
		select {
		case <-old.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.Start(ctx)
}

// Close closes both peer connections immediately. Operations in flight
// fail with core.ErrClosed.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	s.close()

	st := c.feed.Current()
	st.Closed = true
	st.LocalSignaling = domain.SignalingStateClosed
	st.RemoteSignaling = domain.SignalingStateClosed
	c.publishFrom(s, st)
	return nil
}

func (c *Coordinator) AddTracks(ctx context.Context) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	constraints := c.currentConstraints()
	return s.do(ctx, "add-tracks", func() error {
		return s.addTracks(ctx, constraints)
	})
}

func (c *Coordinator) RemoveTracks(ctx context.Context) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	return s.do(ctx, "remove-tracks", s.removeTracks)
}

// SelectCamera swaps the local tracks for ones captured from deviceID. The
// removal and the addition are separate steps: if capture fails after the
// removal, the local side is left without tracks.
func (c *Coordinator) SelectCamera(ctx context.Context, deviceID string) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	if err := s.do(ctx, "remove-tracks", s.removeTracks); err != nil {
		return err
	}

	constraints := c.currentConstraints()
	constraints.Video = true
	constraints.VideoDeviceID = deviceID
	err = s.do(ctx, "add-tracks", func() error {
		return s.addTracks(ctx, constraints)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.constraints = constraints
	c.mu.Unlock()
	return nil
}

// Renegotiate runs the offer/answer procedure with side as offerer.
func (c *Coordinator) Renegotiate(ctx context.Context, side domain.Side) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	return s.do(ctx, "renegotiate", func() error {
		err := s.negotiate(side, side.Opposite())
		s.record(err)
		return err
	})
}

// Devices lists the cameras a consumer can pass to SelectCamera.
func (c *Coordinator) Devices(ctx context.Context) ([]domain.DeviceInfo, error) {
	all, err := c.Media.EnumerateDevices(ctx)
	if err != nil {
		return nil, err
	}
	cams := make([]domain.DeviceInfo, 0, len(all))
	for _, d := range all {
		if d.Kind == domain.DeviceKindVideoInput {
			cams = append(cams, d)
		}
	}
	return cams, nil
}

// Settle waits until every event queued so far, and every event those
// caused, has been handled.
func (c *Coordinator) Settle(ctx context.Context) error {
	s, err := c.current()
	if err != nil {
		return err
	}
	return s.settle(ctx)
}

func (c *Coordinator) State() app.SessionState { return c.feed.Current() }

func (c *Coordinator) Subscribe() (<-chan app.SessionState, func()) { return c.feed.Subscribe() }

func (c *Coordinator) current() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, ErrNotStarted
	}
	return c.sess, nil
}

func (c *Coordinator) currentConstraints() domain.Constraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.constraints
}

// publishFrom drops snapshots of generations that were already replaced.
func (c *Coordinator) publishFrom(s *session, st app.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s {
		return
	}
	c.feed.Publish(st)
}
