package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/app"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, client string, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("client", client).Msg("readPump closing")
		c.Close()
	}()

	pongWait := ctl.Opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("client", client).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("client", client).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, client, c, data)
		}
	}
}

// statePump forwards every published snapshot to the client. The feed keeps
// only the latest snapshot for a slow reader.
func (ctl *SignalWSController) statePump(ctx context.Context, c *WsSignalConn, states <-chan app.SessionState) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			ctl.sendJSON(c, "state", stateMessage{Type: "state", State: st})
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, client string, c *WsSignalConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "", "bad_json")
		return
	}

	if env.Type != "ping" && ctl.Limiter != nil && !ctl.Limiter.Allow(client) {
		log.Warn().Str("module", "signal").Str("client", client).Str("type", env.Type).Msg("rate limited")
		ctl.sendError(c, env.Type, "rate_limited")
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(c)
	case "state":
		ctl.handleState(c)
	case "devices":
		ctl.handleDevices(ctx, c)
	case "start", "restart", "add_tracks", "remove_tracks", "select_camera", "renegotiate":
		ctl.handleControl(ctx, c, env)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, env.Type, "unknown_type")
	}
}

// sendJSON queues v for the write pump and lets the policy decide what a
// full queue means for this observer.
func (ctl *SignalWSController) sendJSON(c *WsSignalConn, msgType string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	err = c.TrySend(b)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrBackpressure) || ctl.Policy == nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", msgType).Msg("sendJSON dropped")
		return
	}
	switch ctl.Policy.OnBackPressure(c.client, msgType) {
	case app.Disconnect:
		log.Warn().Str("module", "signal").Str("client", c.client).Str("type", msgType).Msg("slow observer, disconnecting")
		c.Close()
	case app.DropFrame:
		log.Debug().Str("module", "signal").Str("client", c.client).Str("type", msgType).Msg("frame dropped")
	}
}
