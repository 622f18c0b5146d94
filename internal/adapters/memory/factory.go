package memory

import (
	"sync"

	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

// Factory builds memory connections and remembers the latest one per side.
type Factory struct {
	opts Options

	mu    sync.Mutex
	conns map[domain.Side]*Connection
}

var _ core.PeerFactory = (*Factory)(nil)

func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts, conns: make(map[domain.Side]*Connection)}
}

func (f *Factory) NewPeerConnection(side domain.Side) (core.PeerConnection, error) {
	c := NewConnection(side, f.opts)
	f.mu.Lock()
	f.conns[side] = c
	f.mu.Unlock()
	return c, nil
}

// Last returns the most recent connection built for side.
func (f *Factory) Last(side domain.Side) *Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[side]
}
