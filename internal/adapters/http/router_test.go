package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/loopcall/internal/adapters/media"
	"github.com/dkeye/loopcall/internal/adapters/memory"
	"github.com/dkeye/loopcall/internal/app"
	"github.com/dkeye/loopcall/internal/app/orch"
	"github.com/dkeye/loopcall/internal/config"
	"github.com/dkeye/loopcall/internal/core"
	"github.com/dkeye/loopcall/internal/domain"
)

type testServer struct {
	router *gin.Engine
	coord  *orch.Coordinator
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	devices := media.NewDevices(media.Options{Cameras: []media.Camera{
		{ID: "front", Label: "Front"},
		{ID: "back", Label: "Back"},
		{ID: "broken", Label: "Broken", Unavailable: true},
	}})
	coord := orch.NewCoordinator(memory.NewFactory(memory.Options{CandidatesPerDescription: 1}), devices, orch.Options{Audio: true, AutoMedia: true})
	t.Cleanup(func() { _ = coord.Close() })

	cfg := &config.Config{
		Mode:   "test",
		Secret: "test-secret",
		HTTP:   config.HTTPConfig{RateLimit: rateLimit, RateWindow: time.Hour, OpTimeout: 5 * time.Second},
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &testServer{router: SetupRouter(ctx, cfg, coord), coord: coord}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: "ct", Value: "test-client"})
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

func (s *testServer) settled(t *testing.T) app.SessionState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.coord.Settle(ctx); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	return s.coord.State()
}

func TestRouter_SessionLifecycle(t *testing.T) {
	s := newTestServer(t, 0)

	if code, _ := s.do(t, http.MethodPost, "/api/session/tracks", ""); code != http.StatusConflict {
		t.Errorf("add tracks before start = %d, want 409", code)
	}

	code, body := s.do(t, http.MethodPost, "/api/session/start", "")
	if code != http.StatusOK {
		t.Fatalf("start = %d %s", code, body)
	}
	st := s.settled(t)
	if st.RemoteStream == nil || len(st.RemoteStream.Tracks) != 2 {
		t.Fatalf("remote stream after start = %+v", st.RemoteStream)
	}

	if code, _ := s.do(t, http.MethodPost, "/api/session/start", ""); code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", code)
	}

	code, body = s.do(t, http.MethodGet, "/api/session/state", "")
	if code != http.StatusOK {
		t.Fatalf("state = %d", code)
	}
	var got app.SessionState
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if got.LocalSignaling != domain.SignalingStateStable || got.Generation != 1 {
		t.Errorf("state = %+v", got)
	}

	if code, body := s.do(t, http.MethodPost, "/api/session/renegotiate", `{"offerer":"remote"}`); code != http.StatusOK {
		t.Errorf("renegotiate = %d %s", code, body)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/session/renegotiate", ""); code != http.StatusOK {
		t.Errorf("renegotiate without body = %d", code)
	}

	if code, _ := s.do(t, http.MethodDelete, "/api/session/tracks", ""); code != http.StatusOK {
		t.Errorf("remove tracks = %d", code)
	}
	if st := s.settled(t); len(st.LocalTracks) != 0 {
		t.Errorf("local tracks after remove = %d", len(st.LocalTracks))
	}

	if code, _ := s.do(t, http.MethodPost, "/api/session/restart", ""); code != http.StatusOK {
		t.Errorf("restart = %d", code)
	}
	if st := s.settled(t); st.Generation != 2 {
		t.Errorf("generation after restart = %d, want 2", st.Generation)
	}

	if code, _ := s.do(t, http.MethodPost, "/api/session/close", ""); code != http.StatusOK {
		t.Errorf("close = %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/session/tracks", ""); code != http.StatusGone {
		t.Errorf("add tracks after close = %d, want 410", code)
	}
}

func TestRouter_SelectCamera(t *testing.T) {
	s := newTestServer(t, 0)
	if code, _ := s.do(t, http.MethodPost, "/api/session/start", ""); code != http.StatusOK {
		t.Fatalf("start = %d", code)
	}
	s.settled(t)

	if code, _ := s.do(t, http.MethodPost, "/api/session/camera", `{}`); code != http.StatusBadRequest {
		t.Errorf("camera without id = %d, want 400", code)
	}

	if code, body := s.do(t, http.MethodPost, "/api/session/camera", `{"device_id":"back"}`); code != http.StatusOK {
		t.Fatalf("camera back = %d %s", code, body)
	}
	st := s.settled(t)
	if len(st.LocalTracks) != 2 || st.LocalTracks[1].Label != "Back" {
		t.Errorf("local tracks = %+v", st.LocalTracks)
	}

	code, body := s.do(t, http.MethodPost, "/api/session/camera", `{"device_id":"broken"}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("camera broken = %d, want 422", code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Kind != "media_acquisition_failed" {
		t.Errorf("error body = %s", body)
	}
	if st := s.settled(t); len(st.LocalTracks) != 0 {
		t.Errorf("local tracks after failed switch = %d, want 0", len(st.LocalTracks))
	}
}

func TestRouter_Devices(t *testing.T) {
	s := newTestServer(t, 0)
	code, body := s.do(t, http.MethodGet, "/api/devices", "")
	if code != http.StatusOK {
		t.Fatalf("devices = %d", code)
	}
	var devs []domain.DeviceInfo
	if err := json.Unmarshal(body, &devs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(devs) != 3 {
		t.Errorf("cameras = %+v, want 3", devs)
	}
}

func TestRouter_BadRenegotiateBody(t *testing.T) {
	s := newTestServer(t, 0)
	if code, _ := s.do(t, http.MethodPost, "/api/session/renegotiate", `{"offerer":"sideways"}`); code != http.StatusBadRequest {
		t.Errorf("renegotiate sideways = %d, want 400", code)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	s := newTestServer(t, 2)
	codes := make([]int, 3)
	for i := range codes {
		codes[i], _ = s.do(t, http.MethodPost, "/api/session/renegotiate", "")
	}
	// Not started yet, so allowed calls conflict; the third is throttled.
	if codes[0] != http.StatusConflict || codes[1] != http.StatusConflict || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [409 409 429]", codes)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/session/state", ""); code != http.StatusOK {
		t.Errorf("state while throttled = %d, want 200", code)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
		wantStep string
	}{
		{"not started", orch.ErrNotStarted, http.StatusConflict, "conflict", ""},
		{"closed", &core.NegotiationError{Side: domain.SideLocal, Op: core.OpAddTrack, Err: core.ErrClosed}, http.StatusGone, "closed", ""},
		{"media", core.ErrMediaAcquisitionFailed, http.StatusUnprocessableEntity, "media_acquisition_failed", ""},
		{
			"rejected at step",
			&core.NegotiationError{Side: domain.SideRemote, Step: core.StepSetRemoteOffer, Err: core.Rejected(errors.New("bad sdp"))},
			http.StatusConflict, "capability_rejected", "c:set-remote-offer",
		},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout", ""},
		{"other", errors.New("boom"), http.StatusInternalServerError, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := classify(tt.err)
			if code != tt.wantCode || resp.Kind != tt.wantKind || resp.Step != tt.wantStep {
				t.Errorf("classify = %d %+v, want %d %s %s", code, resp, tt.wantCode, tt.wantKind, tt.wantStep)
			}
		})
	}
}
