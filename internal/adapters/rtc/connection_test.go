package rtc

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

type staticTrack struct {
	*webrtc.TrackLocalStaticRTP
}

func (t staticTrack) Kind() domain.TrackKind {
	return domain.TrackKind(t.TrackLocalStaticRTP.Kind().String())
}
func (t staticTrack) Label() string                { return "test" }
func (t staticTrack) PionTrack() webrtc.TrackLocal { return t.TrackLocalStaticRTP }

type plainTrack struct{}

func (plainTrack) ID() string             { return "plain" }
func (plainTrack) Kind() domain.TrackKind { return domain.TrackKindVideo }
func (plainTrack) StreamID() string       { return "" }
func (plainTrack) Label() string          { return "" }

func newVP8(t *testing.T, id, stream string) staticTrack {
	t.Helper()
	tr, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, stream)
	if err != nil {
		t.Fatalf("NewTrackLocalStaticRTP: %v", err)
	}
	return staticTrack{tr}
}

func newPair(t *testing.T) (*Factory, *Connection, *Connection) {
	t.Helper()
	f, err := NewFactory(Options{VirtualNetwork: true, PLIInterval: time.Second})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })

	local, err := f.NewPeerConnection(domain.SideLocal)
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	remote, err := f.NewPeerConnection(domain.SideRemote)
	if err != nil {
		t.Fatalf("remote: %v", err)
	}
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})
	if f.Last(domain.SideLocal) != local {
		t.Fatal("Last(local) is not the connection just built")
	}
	return f, local.(*Connection), remote.(*Connection)
}

func negotiate(t *testing.T, from, to *Connection) {
	t.Helper()
	offer, err := from.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.Type != domain.SDPTypeOffer {
		t.Fatalf("offer type = %v", offer.Type)
	}
	if err := from.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription(offer): %v", err)
	}
	if s := from.SignalingState(); s != domain.SignalingStateHaveLocalOffer {
		t.Fatalf("offerer state = %v, want have-local-offer", s)
	}
	if err := to.SetRemoteDescription(offer); err != nil {
		t.Fatalf("SetRemoteDescription(offer): %v", err)
	}
	if s := to.SignalingState(); s != domain.SignalingStateHaveRemoteOffer {
		t.Fatalf("answerer state = %v, want have-remote-offer", s)
	}
	answer, err := to.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := to.SetLocalDescription(answer); err != nil {
		t.Fatalf("SetLocalDescription(answer): %v", err)
	}
	if err := from.SetRemoteDescription(answer); err != nil {
		t.Fatalf("SetRemoteDescription(answer): %v", err)
	}
}

func TestConnection_OfferAnswer(t *testing.T) {
	_, local, remote := newPair(t)

	cands := make(chan domain.Candidate, 16)
	local.OnICECandidate(func(c domain.Candidate) { cands <- c })

	ref, err := local.AddTrack(newVP8(t, "cam", "s1"), "s1")
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if ref.TrackID != "cam" || ref.Kind != domain.TrackKindVideo {
		t.Errorf("sender ref = %+v", ref)
	}

	negotiate(t, local, remote)

	if s := local.SignalingState(); s != domain.SignalingStateStable {
		t.Errorf("local state = %v, want stable", s)
	}
	if s := remote.SignalingState(); s != domain.SignalingStateStable {
		t.Errorf("remote state = %v, want stable", s)
	}

	select {
	case c := <-cands:
		if !strings.HasPrefix(c.Candidate, "candidate:") {
			t.Errorf("candidate = %q", c.Candidate)
		}
		if err := remote.AddICECandidate(c); err != nil {
			t.Errorf("AddICECandidate: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no candidate gathered on the virtual network")
	}
}

func TestConnection_RemoveTrack(t *testing.T) {
	_, local, _ := newPair(t)

	ref, err := local.AddTrack(newVP8(t, "cam", "s1"), "s1")
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if got := len(local.Senders()); got != 1 {
		t.Fatalf("senders = %d, want 1", got)
	}
	if err := local.RemoveTrack(ref); err != nil {
		t.Fatalf("RemoveTrack: %v", err)
	}
	if got := len(local.Senders()); got != 0 {
		t.Errorf("senders = %d, want 0", got)
	}
	if err := local.RemoveTrack(ref); !errors.Is(err, ErrUnknownSender) {
		t.Errorf("second RemoveTrack = %v, want ErrUnknownSender", err)
	}
}

func TestConnection_UnsupportedTrack(t *testing.T) {
	_, local, _ := newPair(t)
	if _, err := local.AddTrack(plainTrack{}, ""); !errors.Is(err, ErrUnsupportedTrack) {
		t.Errorf("AddTrack = %v, want ErrUnsupportedTrack", err)
	}
}

func TestConnection_ClosedIsClassified(t *testing.T) {
	_, local, _ := newPair(t)
	if err := local.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := local.CreateOffer(); !errors.Is(err, core.ErrClosed) {
		t.Errorf("CreateOffer after Close = %v, want ErrClosed", err)
	}
	if s := local.SignalingState(); s != domain.SignalingStateClosed {
		t.Errorf("state = %v, want closed", s)
	}
}

func TestReceiveStats_Record(t *testing.T) {
	s := newReceiveStats()
	s.record("video", &rtp.Packet{})
	s.record("video", &rtp.Packet{})
	s.record("audio", &rtp.Packet{})
	s.record("audio", nil)

	if s.total() != 3 {
		t.Errorf("total = %d, want 3", s.total())
	}
	if s.kind("video") != 2 || s.kind("audio") != 1 {
		t.Errorf("by kind = video %d audio %d", s.kind("video"), s.kind("audio"))
	}
}
