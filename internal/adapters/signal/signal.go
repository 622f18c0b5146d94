// Package signal is the WebSocket face of a session: it streams state
// snapshots to the browser and accepts control messages back.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/app"
	"github.com/dkeye/loopcall/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	// OpTimeout bounds a single control operation.
	OpTimeout time.Duration
}

type SignalWSController struct {
	Session app.Session
	Limiter *RateLimiter
	Policy  app.Policy
	Opts    Options
}

func NewSignalWSController(sess app.Session, limiter *RateLimiter, opts Options) *SignalWSController {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 10 * time.Second
	}
	return &SignalWSController{Session: sess, Limiter: limiter, Policy: app.SimplePolicy{}, Opts: opts}
}

type WsSignalConn struct {
	conn   *websocket.Conn
	send   chan core.Frame
	client string

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves one observer until either
// side goes away or ctx ends.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	client := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("client", client).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn:   ws,
		send:   make(chan core.Frame, 32),
		client: client,
	}

	ctx, cancel := context.WithCancel(ctx)
	states, unsubscribe := ctl.Session.Subscribe()

	go ctl.writePump(ctx, conn)
	go ctl.statePump(ctx, conn, states)
	go func() {
		ctl.readPump(ctx, client, conn)
		unsubscribe()
		cancel()
	}()
}
