// Package memory is an in-process PeerConnection that follows the W3C
// signaling state machine without any network. Events are delivered
// synchronously on the goroutine that caused them.
package memory

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

var (
	ErrWrongState          = errors.New("operation not allowed in current signaling state")
	ErrNoRemoteDescription = errors.New("remote description not set")
	ErrUnknownSender       = errors.New("unknown sender")
	ErrDuplicateTrack      = errors.New("track already has a sender")
)

const basePort = 50000

type Options struct {
	// CandidatesPerDescription host candidates are gathered after the first
	// local description.
	CandidatesPerDescription int
}

type sender struct {
	ref    domain.SenderRef
	track  core.MediaTrack
	stream string
}

// AppliedCandidate records a candidate accepted by AddICECandidate together
// with the signaling state at the time of the call.
type AppliedCandidate struct {
	Candidate domain.Candidate
	State     domain.SignalingState
}

type Connection struct {
	side      domain.Side
	opts      Options
	sessionID uint64

	mu        sync.Mutex
	state     domain.SignalingState
	version   uint64
	local     *domain.Description
	remote    *domain.Description
	senders   []sender
	announced map[string]bool
	gathered  bool
	needNego  bool
	nextPort  int
	applied   []AppliedCandidate
	failures  map[core.Op]error

	onState     func(domain.SignalingState)
	onCandidate func(domain.Candidate)
	onNego      func()
	onTrack     func(core.TrackEvent)
}

var _ core.PeerConnection = (*Connection)(nil)

func NewConnection(side domain.Side, opts Options) *Connection {
	return &Connection{
		side:      side,
		opts:      opts,
		sessionID: rand.Uint64() >> 1,
		state:     domain.SignalingStateStable,
		announced: make(map[string]bool),
		nextPort:  basePort + int(side)*1000,
		failures:  make(map[core.Op]error),
	}
}

func (c *Connection) OnSignalingStateChange(fn func(domain.SignalingState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *Connection) OnICECandidate(fn func(domain.Candidate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = fn
}

func (c *Connection) OnNegotiationNeeded(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNego = fn
}

func (c *Connection) OnTrack(fn func(core.TrackEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

// FailNext makes the next call of op fail with err.
func (c *Connection) FailNext(op core.Op, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = err
}

func (c *Connection) CreateOffer() (domain.Description, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(core.OpCreateOffer); err != nil {
		return domain.Description{}, err
	}
	if c.state == domain.SignalingStateHaveRemoteOffer || c.state == domain.SignalingStateHaveLocalPranswer {
		return domain.Description{}, c.wrongState(core.OpCreateOffer)
	}
	return c.describe(domain.SDPTypeOffer)
}

func (c *Connection) CreateAnswer() (domain.Description, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(core.OpCreateAnswer); err != nil {
		return domain.Description{}, err
	}
	if c.state != domain.SignalingStateHaveRemoteOffer && c.state != domain.SignalingStateHaveLocalPranswer {
		return domain.Description{}, c.wrongState(core.OpCreateAnswer)
	}
	return c.describe(domain.SDPTypeAnswer)
}

func (c *Connection) SetLocalDescription(d domain.Description) error {
	c.mu.Lock()
	if err := c.check(core.OpSetLocalDescription); err != nil {
		c.mu.Unlock()
		return err
	}
	next, ok := localTransition(c.state, d.Type)
	if !ok {
		c.mu.Unlock()
		return c.wrongState(core.OpSetLocalDescription)
	}
	if d.Type != domain.SDPTypeRollback {
		if _, err := unmarshalTracks(d.SDP); err != nil {
			c.mu.Unlock()
			return err
		}
		desc := d
		c.local = &desc
	}
	emits := c.transition(next)
	if !c.gathered {
		c.gathered = true
		emits = append(emits, c.gather()...)
	}
	c.mu.Unlock()

	run(emits)
	return nil
}

func (c *Connection) SetRemoteDescription(d domain.Description) error {
	c.mu.Lock()
	if err := c.check(core.OpSetRemoteDescription); err != nil {
		c.mu.Unlock()
		return err
	}
	next, ok := remoteTransition(c.state, d.Type)
	if !ok {
		c.mu.Unlock()
		return c.wrongState(core.OpSetRemoteDescription)
	}
	var emits []func()
	if d.Type != domain.SDPTypeRollback {
		tracks, err := unmarshalTracks(d.SDP)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		desc := d
		c.remote = &desc
		emits = c.announce(tracks)
	}
	emits = append(c.transition(next), emits...)
	c.mu.Unlock()

	run(emits)
	return nil
}

func (c *Connection) AddICECandidate(cand domain.Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(core.OpAddICECandidate); err != nil {
		return err
	}
	if c.remote == nil {
		return ErrNoRemoteDescription
	}
	if err := validateCandidate(cand); err != nil {
		return err
	}
	c.applied = append(c.applied, AppliedCandidate{Candidate: cand, State: c.state})
	return nil
}

func (c *Connection) AddTrack(track core.MediaTrack, streamHint string) (domain.SenderRef, error) {
	c.mu.Lock()
	if err := c.check(core.OpAddTrack); err != nil {
		c.mu.Unlock()
		return domain.SenderRef{}, err
	}
	if slices.ContainsFunc(c.senders, func(s sender) bool { return s.track.ID() == track.ID() }) {
		c.mu.Unlock()
		return domain.SenderRef{}, fmt.Errorf("%w: %s", ErrDuplicateTrack, track.ID())
	}
	stream := streamHint
	if stream == "" {
		stream = track.StreamID()
	}
	ref := domain.SenderRef{ID: uuid.NewString(), TrackID: track.ID(), Kind: track.Kind()}
	c.senders = append(c.senders, sender{ref: ref, track: track, stream: stream})
	emits := c.negotiationNeeded()
	c.mu.Unlock()

	run(emits)
	return ref, nil
}

func (c *Connection) RemoveTrack(ref domain.SenderRef) error {
	c.mu.Lock()
	if err := c.check(core.OpRemoveTrack); err != nil {
		c.mu.Unlock()
		return err
	}
	i := slices.IndexFunc(c.senders, func(s sender) bool { return s.ref.ID == ref.ID })
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSender, ref.ID)
	}
	c.senders = slices.Delete(c.senders, i, i+1)
	emits := c.negotiationNeeded()
	c.mu.Unlock()

	run(emits)
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
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == domain.SignalingStateClosed {
		c.mu.Unlock()
		return nil
	}
	emits := c.transition(domain.SignalingStateClosed)
	c.mu.Unlock()

	run(emits)
	log.Debug().Str("module", "memory").Str("side", c.side.String()).Msg("closed")
	return nil
}

// EmitCandidate reports cand as if ICE had just discovered it.
func (c *Connection) EmitCandidate(cand domain.Candidate) {
	c.mu.Lock()
	fn := c.onCandidate
	c.mu.Unlock()
	if fn != nil {
		fn(cand)
	}
}

// NextCandidate builds a fresh, well-formed host candidate.
func (c *Connection) NextCandidate() domain.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	cand, err := hostCandidate(c.nextPort)
	if err != nil {
		panic(err)
	}
	c.nextPort++
	return cand
}

// Applied lists candidates accepted by AddICECandidate, oldest first.
func (c *Connection) Applied() []AppliedCandidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.applied)
}

func (c *Connection) LocalDescription() *domain.Description {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local == nil {
		return nil
	}
	d := *c.local
	return &d
}

func (c *Connection) RemoteDescription() *domain.Description {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return nil
	}
	d := *c.remote
	return &d
}

// check runs under c.mu.
func (c *Connection) check(op core.Op) error {
	if c.state == domain.SignalingStateClosed {
		return core.ErrClosed
	}
	if err, ok := c.failures[op]; ok {
		delete(c.failures, op)
		return err
	}
	return nil
}

func (c *Connection) wrongState(op core.Op) error {
	return fmt.Errorf("%w: %s in %s", ErrWrongState, op, c.state)
}

func (c *Connection) describe(t domain.SDPType) (domain.Description, error) {
	c.version++
	raw, err := marshalDescription(c.sessionID, c.version, c.senders)
	if err != nil {
		return domain.Description{}, err
	}
	return domain.Description{Type: t, SDP: raw}, nil
}

// transition runs under c.mu and returns the events to fire once unlocked.
func (c *Connection) transition(next domain.SignalingState) []func() {
	if next == c.state {
		return nil
	}
	c.state = next
	var emits []func()
	if fn := c.onState; fn != nil {
		emits = append(emits, func() { fn(next) })
	}
	if next == domain.SignalingStateStable && c.needNego {
		c.needNego = false
		if fn := c.onNego; fn != nil {
			emits = append(emits, fn)
		}
	}
	return emits
}

// negotiationNeeded fires right away when stable and is deferred until the
// next return to stable otherwise.
func (c *Connection) negotiationNeeded() []func() {
	if c.state != domain.SignalingStateStable {
		c.needNego = true
		return nil
	}
	if fn := c.onNego; fn != nil {
		return []func(){fn}
	}
	return nil
}

func (c *Connection) gather() []func() {
	fn := c.onCandidate
	var emits []func()
	for range c.opts.CandidatesPerDescription {
		cand, err := hostCandidate(c.nextPort)
		c.nextPort++
		if err != nil {
			log.Error().Err(err).Str("module", "memory").Msg("gather candidate")
			continue
		}
		if fn != nil {
			emits = append(emits, func() { fn(cand) })
		}
	}
	return emits
}

// announce reports tracks not seen in the previous remote description.
func (c *Connection) announce(tracks []*remoteTrack) []func() {
	fn := c.onTrack
	seen := make(map[string]bool, len(tracks))
	var emits []func()
	for _, t := range tracks {
		seen[t.id] = true
		if c.announced[t.id] {
			continue
		}
		if fn != nil {
			ev := core.TrackEvent{Track: t, Stream: t.stream}
			emits = append(emits, func() { fn(ev) })
		}
	}
	c.announced = seen
	return emits
}

func run(emits []func()) {
	for _, fn := range emits {
		fn()
	}
}

func localTransition(from domain.SignalingState, t domain.SDPType) (domain.SignalingState, bool) {
	switch {
	case t == domain.SDPTypeOffer && (from == domain.SignalingStateStable || from == domain.SignalingStateHaveLocalOffer):
		return domain.SignalingStateHaveLocalOffer, true
	case t == domain.SDPTypeAnswer && (from == domain.SignalingStateHaveRemoteOffer || from == domain.SignalingStateHaveLocalPranswer):
		return domain.SignalingStateStable, true
	case t == domain.SDPTypePranswer && (from == domain.SignalingStateHaveRemoteOffer || from == domain.SignalingStateHaveLocalPranswer):
		return domain.SignalingStateHaveLocalPranswer, true
	case t == domain.SDPTypeRollback && from != domain.SignalingStateClosed:
		return domain.SignalingStateStable, true
	}
	return from, false
}

func remoteTransition(from domain.SignalingState, t domain.SDPType) (domain.SignalingState, bool) {
	switch {
	case t == domain.SDPTypeOffer && (from == domain.SignalingStateStable || from == domain.SignalingStateHaveRemoteOffer):
		return domain.SignalingStateHaveRemoteOffer, true
	case t == domain.SDPTypeAnswer && (from == domain.SignalingStateHaveLocalOffer || from == domain.SignalingStateHaveRemotePranswer):
		return domain.SignalingStateStable, true
	case t == domain.SDPTypePranswer && (from == domain.SignalingStateHaveLocalOffer || from == domain.SignalingStateHaveRemotePranswer):
		return domain.SignalingStateHaveRemotePranswer, true
	case t == domain.SDPTypeRollback && from != domain.SignalingStateClosed:
		return domain.SignalingStateStable, true
	}
	return from, false
}
