package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raidwatch/raidwatch/internal/engine"
	"github.com/raidwatch/raidwatch/internal/event"
	"github.com/raidwatch/raidwatch/internal/monitor"
	"github.com/raidwatch/raidwatch/internal/procscan"
	"github.com/raidwatch/raidwatch/internal/registry"
	"github.com/raidwatch/raidwatch/internal/session"
)

type fakeController struct {
	startErr  error
	started   []int32
	running   map[string]bool
	processes []procscan.Process
	procsFor  string
}

func (f *fakeController) SupportedManagers() []registry.Summary {
	return []registry.Summary{{ID: "eternal-city", Label: "Eternal City Manager", ProcessKeywords: []string{"city.exe"}}}
}

func (f *fakeController) Sessions() []*session.State {
	var out []*session.State
	for id := range f.running {
		out = append(out, &session.State{ID: "s-" + id, ManagerID: id, Status: session.Running})
	}
	return out
}

func (f *fakeController) Session(managerID string) (*session.State, bool) {
	if !f.running[managerID] {
		return nil, false
	}
	return &session.State{ID: "s-" + managerID, ManagerID: managerID, Status: session.Running}, true
}

func (f *fakeController) Start(_ context.Context, managerID string, pids []int32) (*session.State, error) {
	if managerID != "eternal-city" {
		return nil, errors.Wrapf(registry.ErrUnknownManager, "%q", managerID)
	}
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = pids
	if f.running == nil {
		f.running = map[string]bool{}
	}
	f.running[managerID] = true
	return &session.State{ID: "s-1", ManagerID: managerID, Status: session.Running}, nil
}

func (f *fakeController) Stop(managerID string) (bool, error) {
	if managerID != "eternal-city" {
		return false, errors.Wrapf(registry.ErrUnknownManager, "%q", managerID)
	}
	was := f.running[managerID]
	delete(f.running, managerID)
	return was, nil
}

func (f *fakeController) Processes(_ context.Context, managerID string) ([]procscan.Process, error) {
	f.procsFor = managerID
	return f.processes, nil
}

func newTestServer(t *testing.T, ctrl Controller, token string) *httptest.Server {
	t.Helper()
	b := NewBroadcaster(session.NewStore(), 0, 1)
	t.Cleanup(b.Stop)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("raidwatch_active_sessions 0\n"))
	})
	s := NewServer(ctrl, b, nil, token, WithMetricsHandler(metrics))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func TestManagersEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeController{}, "")

	resp := do(t, http.MethodGet, srv.URL+"/api/managers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	var got []registry.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "eternal-city", got[0].ID)
}

func TestStartEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		manager  string
		body     string
		startErr error
		want     int
	}{
		{"ok", "eternal-city", `{"pids":[4821,99]}`, nil, http.StatusOK},
		{"empty body", "eternal-city", "", nil, http.StatusOK},
		{"bad body", "eternal-city", "{", nil, http.StatusBadRequest},
		{"unknown manager", "nope", `{}`, nil, http.StatusNotFound},
		{"no target", "eternal-city", `{}`, monitor.ErrNoTarget, http.StatusUnprocessableEntity},
		{"spawn failure", "eternal-city", `{}`, errors.Wrap(engine.ErrScriptNotFound, "sniffer.py"), http.StatusBadGateway},
		{"other", "eternal-city", `{}`, errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{startErr: tt.startErr}
			srv := newTestServer(t, ctrl, "")

			resp := do(t, http.MethodPost, srv.URL+"/api/managers/"+tt.manager+"/start", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.want == http.StatusOK && tt.body != "" {
				assert.Equal(t, []int32{4821, 99}, ctrl.started)
			}
		})
	}
}

func TestStopEndpoint(t *testing.T) {
	ctrl := &fakeController{running: map[string]bool{"eternal-city": true}}
	srv := newTestServer(t, ctrl, "")

	assert.Equal(t, http.StatusNoContent, do(t, http.MethodPost, srv.URL+"/api/managers/eternal-city/stop", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, srv.URL+"/api/managers/eternal-city/stop", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, srv.URL+"/api/managers/nope/stop", "").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, http.MethodGet, srv.URL+"/api/managers/eternal-city/stop", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, srv.URL+"/api/managers/eternal-city/pause", "").StatusCode)
}

func TestSessionsEndpoint(t *testing.T) {
	ctrl := &fakeController{running: map[string]bool{"eternal-city": true}}
	srv := newTestServer(t, ctrl, "")

	resp := do(t, http.MethodGet, srv.URL+"/api/sessions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []*session.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, session.Running, got[0].Status)
}

func TestSessionEndpoint(t *testing.T) {
	ctrl := &fakeController{running: map[string]bool{"eternal-city": true}}
	srv := newTestServer(t, ctrl, "")

	resp := do(t, http.MethodGet, srv.URL+"/api/managers/eternal-city/session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got session.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "eternal-city", got.ManagerID)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, http.MethodPost, srv.URL+"/api/managers/eternal-city/session", "").StatusCode)

	ctrl.running = nil
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/managers/eternal-city/session", "").StatusCode)
}

func TestProcessesEndpoint(t *testing.T) {
	ctrl := &fakeController{processes: []procscan.Process{{PID: 55, Name: "City.exe"}}}
	srv := newTestServer(t, ctrl, "")

	resp := do(t, http.MethodGet, srv.URL+"/api/processes?manager=eternal-city", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "eternal-city", ctrl.procsFor)

	var got []procscan.Process
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, int32(55), got[0].PID)

	ctrl.processes = nil
	resp = do(t, http.MethodGet, srv.URL+"/api/processes", "")
	var empty []procscan.Process
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&empty))
	assert.NotNil(t, empty)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeController{}, "")
	resp := do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthorize(t *testing.T) {
	srv := newTestServer(t, &fakeController{}, "secret")

	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.URL+"/api/managers", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodPost, srv.URL+"/api/managers/eternal-city/start", "").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/managers?token=secret", "").StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/sessions", nil)
	req.Header.Set(TokenHeader, "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketThroughServer(t *testing.T) {
	ctrl := &fakeController{}
	b := NewBroadcaster(session.NewStore(), 0, 1)
	defer b.Stop()
	srv := httptest.NewServer(NewServer(ctrl, b, nil, "secret").Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, MsgSnapshot, msg.Type)

	b.Emit(event.Event{Name: event.StatusUpdate, ManagerID: "eternal-city", Payload: "Monitoring stopped"})
	msg = readMessage(t, conn)
	assert.Equal(t, string(event.StatusUpdate), msg.Type)

	// The second client exceeds max_connections and is closed.
	second, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer second.Close()
	_, _, err = second.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater))
}

func TestCheckOrigin(t *testing.T) {
	open := NewServer(&fakeController{}, nil, nil, "")
	restricted := NewServer(&fakeController{}, nil, []string{"http://dash.example:5173"}, "")

	tests := []struct {
		name   string
		s      *Server
		origin string
		want   bool
	}{
		{"no origin", open, "", true},
		{"localhost", open, "http://localhost:5173", true},
		{"loopback v6", open, "http://[::1]:3000", true},
		{"foreign", open, "http://evil.example", false},
		{"allowed", restricted, "http://dash.example:5173", true},
		{"not allowed", restricted, "http://localhost:5173", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:8080/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := tt.s.checkOrigin(req); got != tt.want {
			t.Errorf("%s: checkOrigin(%q) = %v, want %v", tt.name, tt.origin, got, tt.want)
		}
	}
}
