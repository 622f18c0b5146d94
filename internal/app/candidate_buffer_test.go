package app

import (
	"errors"
	"testing"

	"github.com/dkeye/loopcall/internal/domain"
)

type fakeSink struct {
	state  domain.SignalingState
	got    []string
	reject map[string]bool
}

func (s *fakeSink) SignalingState() domain.SignalingState { return s.state }

func (s *fakeSink) AddICECandidate(c domain.Candidate) error {
	if s.reject[c.Candidate] {
		return errors.New("rejected " + c.Candidate)
	}
	s.got = append(s.got, c.Candidate)
	return nil
}

func cand(s string) domain.Candidate { return domain.Candidate{Candidate: s} }

func TestCandidateBuffer_DrainKeepsOrder(t *testing.T) {
	b := NewCandidateBuffer(domain.SideRemote, domain.SideLocal)
	for _, c := range []string{"c1", "c2", "c3"} {
		b.Offer(cand(c))
	}
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}

	sink := &fakeSink{state: domain.SignalingStateStable}
	n, err := b.DrainInto(sink)
	if err != nil {
		t.Fatalf("DrainInto: %v", err)
	}
	if n != 3 {
		t.Errorf("drained = %d, want 3", n)
	}
	want := []string{"c1", "c2", "c3"}
	for i := range want {
		if sink.got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, sink.got[i], want[i])
		}
	}
	if b.Len() != 0 {
		t.Errorf("Len after drain = %d, want 0", b.Len())
	}

	// A second drain delivers nothing twice.
	n, _ = b.DrainInto(sink)
	if n != 0 || len(sink.got) != 3 {
		t.Errorf("second drain delivered %d, total %d", n, len(sink.got))
	}
}

func TestCandidateBuffer_NotStableIsNoop(t *testing.T) {
	states := []domain.SignalingState{
		domain.SignalingStateHaveLocalOffer,
		domain.SignalingStateHaveRemoteOffer,
		domain.SignalingStateHaveLocalPranswer,
		domain.SignalingStateHaveRemotePranswer,
		domain.SignalingStateClosed,
	}
	for _, st := range states {
		t.Run(st.String(), func(t *testing.T) {
			b := NewCandidateBuffer(domain.SideLocal, domain.SideRemote)
			b.Offer(cand("c1"))
			sink := &fakeSink{state: st}
			n, err := b.DrainInto(sink)
			if n != 0 || err != nil {
				t.Errorf("DrainInto = %d, %v, want 0, nil", n, err)
			}
			if len(sink.got) != 0 {
				t.Errorf("delivered %v while %v", sink.got, st)
			}
			if b.Len() != 1 {
				t.Errorf("Len = %d, want 1", b.Len())
			}
		})
	}
}

func TestCandidateBuffer_RejectedAreDropped(t *testing.T) {
	b := NewCandidateBuffer(domain.SideRemote, domain.SideLocal)
	b.Offer(cand("c1"))
	b.Offer(cand("bad"))
	b.Offer(cand("c3"))

	sink := &fakeSink{state: domain.SignalingStateStable, reject: map[string]bool{"bad": true}}
	n, err := b.DrainInto(sink)
	if err == nil {
		t.Fatal("DrainInto error = nil, want rejection")
	}
	if n != 3 {
		t.Errorf("drained = %d, want 3", n)
	}
	if len(sink.got) != 2 || sink.got[0] != "c1" || sink.got[1] != "c3" {
		t.Errorf("delivered = %v, want [c1 c3]", sink.got)
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d, rejected candidate was re-queued", b.Len())
	}
}

func TestCandidateBuffer_Clear(t *testing.T) {
	b := NewCandidateBuffer(domain.SideRemote, domain.SideLocal)
	if n := b.Clear(); n != 0 {
		t.Errorf("Clear on empty = %d, want 0", n)
	}
	b.Offer(cand("c1"))
	b.Offer(cand("c2"))
	if n := b.Clear(); n != 2 {
		t.Errorf("Clear = %d, want 2", n)
	}
	if n, _ := b.DrainInto(&fakeSink{state: domain.SignalingStateStable}); n != 0 {
		t.Errorf("drained %d after Clear", n)
	}
}
