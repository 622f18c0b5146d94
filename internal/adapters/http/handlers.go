package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/loopcall/internal/app"
	"github.com/dkeye/loopcall/internal/app/orch"
	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

type CameraRequest struct {
	DeviceID string `json:"device_id"`
}

type RenegotiateRequest struct {
	Offerer string `json:"offerer"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Side  string `json:"side,omitempty"`
	Step  string `json:"step,omitempty"`
}

// Handlers exposes an app.Session over REST. Every mutating handler answers
// with the state snapshot taken after the operation.
type Handlers struct {
	Session   app.Session
	OpTimeout time.Duration
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.Session.State())
}

func (h *Handlers) Devices(c *gin.Context) {
	ctx, cancel := h.opContext(c)
	defer cancel()
	devs, err := h.Session.Devices(ctx)
	if err != nil {
		h.fail(c, "devices", err)
		return
	}
	c.JSON(http.StatusOK, devs)
}

func (h *Handlers) Start(c *gin.Context)        { h.run(c, "start", h.Session.Start) }
func (h *Handlers) Restart(c *gin.Context)      { h.run(c, "restart", h.Session.Restart) }
func (h *Handlers) AddTracks(c *gin.Context)    { h.run(c, "add_tracks", h.Session.AddTracks) }
func (h *Handlers) RemoveTracks(c *gin.Context) { h.run(c, "remove_tracks", h.Session.RemoveTracks) }

func (h *Handlers) Close(c *gin.Context) {
	h.run(c, "close", func(context.Context) error { return h.Session.Close() })
}

func (h *Handlers) SelectCamera(c *gin.Context) {
	var req CameraRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid device_id"})
		return
	}
	h.run(c, "select_camera", func(ctx context.Context) error {
		return h.Session.SelectCamera(ctx, req.DeviceID)
	})
}

func (h *Handlers) Renegotiate(c *gin.Context) {
	var req RenegotiateRequest
	// An empty body means the local side offers.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
			return
		}
	}
	offerer := domain.SideLocal
	if req.Offerer != "" {
		side, ok := domain.ParseSide(req.Offerer)
		if !ok {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "offerer must be local or remote"})
			return
		}
		offerer = side
	}
	h.run(c, "renegotiate", func(ctx context.Context) error {
		return h.Session.Renegotiate(ctx, offerer)
	})
}

func (h *Handlers) run(c *gin.Context, op string, fn func(context.Context) error) {
	ctx, cancel := h.opContext(c)
	defer cancel()
	if err := fn(ctx); err != nil {
		h.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, h.Session.State())
}

func (h *Handlers) opContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.OpTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.OpTimeout)
}

func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status, resp := classify(err)
	log.Warn().Err(err).Str("module", "adapters.http").Str("op", op).Int("status", status).Msg("operation failed")
	c.JSON(status, resp)
}

func classify(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}
	var ne *core.NegotiationError
	if errors.As(err, &ne) {
		resp.Side = ne.Side.String()
		if ne.Step != core.StepNone {
			resp.Step = ne.Step.String()
		}
	}

	switch {
	case errors.Is(err, orch.ErrNotStarted), errors.Is(err, orch.ErrAlreadyStarted):
		resp.Kind = "conflict"
		return http.StatusConflict, resp
	case errors.Is(err, core.ErrClosed):
		resp.Kind = "closed"
		return http.StatusGone, resp
	case errors.Is(err, core.ErrMediaAcquisitionFailed):
		resp.Kind = "media_acquisition_failed"
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, core.ErrCapabilityRejected):
		resp.Kind = "capability_rejected"
		return http.StatusConflict, resp
	case errors.Is(err, context.DeadlineExceeded):
		resp.Kind = "timeout"
		return http.StatusGatewayTimeout, resp
	default:
		return http.StatusInternalServerError, resp
	}
}
