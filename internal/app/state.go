package app

import (
	"slices"
	"sync"

	"github.com/dkeye/loopcall/internal/domain"
)

// SessionState is the observable snapshot of a session. Values handed out
// are copies; mutating them has no effect on the session.
type SessionState struct {
	Generation      int                   `json:"generation"`
	Closed          bool                  `json:"closed"`
	LocalSignaling  domain.SignalingState `json:"local_signaling"`
	RemoteSignaling domain.SignalingState `json:"remote_signaling"`

	LocalTracks  []domain.TrackInfo `json:"local_tracks"`
	RemoteStream *RemoteStream      `json:"remote_stream,omitempty"`
	RemoteTracks []domain.TrackInfo `json:"remote_tracks"`

	BufferedToLocal  int `json:"buffered_to_local"`
	BufferedToRemote int `json:"buffered_to_remote"`

	Negotiations int    `json:"negotiations"`
	LastError    string `json:"last_error,omitempty"`
}

func (s SessionState) Clone() SessionState {
	out := s
	out.LocalTracks = slices.Clone(s.LocalTracks)
	out.RemoteTracks = slices.Clone(s.RemoteTracks)
	if s.RemoteStream != nil {
		out.RemoteStream = &RemoteStream{ID: s.RemoteStream.ID, Tracks: slices.Clone(s.RemoteStream.Tracks)}
	}
	return out
}

// StateFeed fans published snapshots out to subscribers. A slow subscriber
// only ever misses intermediate snapshots, never the latest one.
type StateFeed struct {
	mu      sync.Mutex
	current SessionState
	subs    map[int]chan SessionState
	next    int
}

func NewStateFeed() *StateFeed {
	return &StateFeed{subs: make(map[int]chan SessionState)}
}

func (f *StateFeed) Publish(s SessionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = s.Clone()
	for _, ch := range f.subs {
		offerLatest(ch, f.current.Clone())
	}
}

func (f *StateFeed) Current() SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Clone()
}

// Subscribe returns a channel primed with the current snapshot and a cancel
// func that closes it.
func (f *StateFeed) Subscribe() (<-chan SessionState, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	ch := make(chan SessionState, 1)
	ch <- f.current.Clone()
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(ch)
		})
	}
}

func offerLatest(ch chan SessionState, s SessionState) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
