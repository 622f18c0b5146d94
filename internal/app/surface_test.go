package app

import (
	"testing"

	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

type track struct {
	id, stream string
	kind       domain.TrackKind
}

func (t track) ID() string             { return t.id }
func (t track) Kind() domain.TrackKind { return t.kind }
func (t track) StreamID() string       { return t.stream }
func (t track) Label() string          { return "" }

func arrival(id string, kind domain.TrackKind, stream string) core.TrackEvent {
	return core.TrackEvent{Track: track{id: id, kind: kind, stream: stream}, Stream: stream}
}

func TestRemoteSurface(t *testing.T) {
	tests := []struct {
		name       string
		events     []core.TrackEvent
		wantStream string
		wantInGrp  int
		wantAlone  int
	}{
		{
			name: "grouped tracks accumulate",
			events: []core.TrackEvent{
				arrival("a1", domain.TrackKindAudio, "s1"),
				arrival("v1", domain.TrackKindVideo, "s1"),
			},
			wantStream: "s1",
			wantInGrp:  2,
		},
		{
			name: "new stream replaces old",
			events: []core.TrackEvent{
				arrival("a1", domain.TrackKindAudio, "s1"),
				arrival("v1", domain.TrackKindVideo, "s1"),
				arrival("v2", domain.TrackKindVideo, "s2"),
			},
			wantStream: "s2",
			wantInGrp:  1,
		},
		{
			name: "ungrouped video is standalone",
			events: []core.TrackEvent{
				arrival("v1", domain.TrackKindVideo, ""),
				arrival("v2", domain.TrackKindVideo, ""),
			},
			wantAlone: 2,
		},
		{
			name: "ungrouped audio is ignored",
			events: []core.TrackEvent{
				arrival("a1", domain.TrackKindAudio, ""),
			},
		},
		{
			name: "repeated arrival counted once",
			events: []core.TrackEvent{
				arrival("v1", domain.TrackKindVideo, "s1"),
				arrival("v1", domain.TrackKindVideo, "s1"),
				arrival("v9", domain.TrackKindVideo, ""),
				arrival("v9", domain.TrackKindVideo, ""),
			},
			wantStream: "s1",
			wantInGrp:  1,
			wantAlone:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s RemoteSurface
			for _, ev := range tt.events {
				s.Apply(ev)
			}
			st := s.Stream()
			switch {
			case tt.wantStream == "" && st != nil:
				t.Errorf("stream = %+v, want none", st)
			case tt.wantStream != "" && (st == nil || st.ID != tt.wantStream):
				t.Errorf("stream = %+v, want %s", st, tt.wantStream)
			case st != nil && len(st.Tracks) != tt.wantInGrp:
				t.Errorf("grouped tracks = %d, want %d", len(st.Tracks), tt.wantInGrp)
			}
			if got := len(s.Tracks()); got != tt.wantAlone {
				t.Errorf("standalone tracks = %d, want %d", got, tt.wantAlone)
			}
		})
	}
}

func TestRemoteSurface_ReturnsCopies(t *testing.T) {
	var s RemoteSurface
	s.Apply(arrival("v1", domain.TrackKindVideo, "s1"))
	s.Apply(arrival("v2", domain.TrackKindVideo, ""))

	st := s.Stream()
	st.Tracks[0].ID = "changed"
	s.Tracks()[0].ID = "changed"

	if s.Stream().Tracks[0].ID != "v1" || s.Tracks()[0].ID != "v2" {
		t.Error("surface mutated through returned values")
	}
}
