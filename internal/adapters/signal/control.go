package signal

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/app"
	"github.com/dkeye/loopcall/internal/domain"
)

type envelope struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id,omitempty"`
	Offerer  string `json:"offerer,omitempty"`
}

type stateMessage struct {
	Type  string           `json:"type"`
	State app.SessionState `json:"state"`
}

type resultMessage struct {
	Type  string `json:"type"`
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type devicesMessage struct {
	Type    string              `json:"type"`
	Devices []domain.DeviceInfo `json:"devices"`
}

func (ctl *SignalWSController) handlePing(c *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(c, resp.Type, resp)
}

func (ctl *SignalWSController) handleState(c *WsSignalConn) {
	ctl.sendJSON(c, "state", stateMessage{Type: "state", State: ctl.Session.State()})
}

func (ctl *SignalWSController) handleDevices(ctx context.Context, c *WsSignalConn) {
	ctx, cancel := context.WithTimeout(ctx, ctl.Opts.OpTimeout)
	defer cancel()
	devs, err := ctl.Session.Devices(ctx)
	if err != nil {
		ctl.sendError(c, "devices", err.Error())
		return
	}
	ctl.sendJSON(c, "devices", devicesMessage{Type: "devices", Devices: devs})
}

// handleControl runs one session operation and reports its outcome. The
// resulting state changes arrive separately through the state pump.
func (ctl *SignalWSController) handleControl(ctx context.Context, c *WsSignalConn, env envelope) {
	ctx, cancel := context.WithTimeout(ctx, ctl.Opts.OpTimeout)
	defer cancel()

	err := ctl.run(ctx, env)
	res := resultMessage{Type: "result", Op: env.Type, OK: err == nil}
	if err != nil {
		res.Error = err.Error()
		log.Warn().Err(err).Str("module", "signal").Str("op", env.Type).Msg("control failed")
	}
	ctl.sendJSON(c, res.Type, res)
}

func (ctl *SignalWSController) run(ctx context.Context, env envelope) error {
	s := ctl.Session
	switch env.Type {
	case "start":
		return s.Start(ctx)
	case "restart":
		return s.Restart(ctx)
	case "add_tracks":
		return s.AddTracks(ctx)
	case "remove_tracks":
		return s.RemoveTracks(ctx)
	case "select_camera":
		if env.DeviceID == "" {
			return errors.New("device_id is required")
		}
		return s.SelectCamera(ctx, env.DeviceID)
	case "renegotiate":
		offerer := domain.SideLocal
		if env.Offerer != "" {
			side, ok := domain.ParseSide(env.Offerer)
			if !ok {
				return fmt.Errorf("unknown offerer %q", env.Offerer)
			}
			offerer = side
		}
		return s.Renegotiate(ctx, offerer)
	}
	return fmt.Errorf("unknown op %q", env.Type)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, op, reason string) {
	ctl.sendJSON(c, "result", resultMessage{Type: "result", Op: op, OK: false, Error: reason})
}
