package control

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/chatpurge/internal/health"
	"github.com/p-blackswan/chatpurge/internal/metrics"
	"github.com/p-blackswan/chatpurge/internal/purge"
)

type testServer struct {
	srv    *Server
	states *purge.StateMachine
}

func newTestServer(t *testing.T, cfg ServerConfig) *testServer {
	t.Helper()
	states := purge.NewStateMachine()
	m := metrics.New()
	m.Publish(purge.Snapshot{TotalDeleted: 2, State: purge.Running})

	status := func() purge.Snapshot {
		return purge.Snapshot{
			TotalDeleted:   2,
			TotalProcessed: 5,
			CurrentDelay:   900 * time.Millisecond,
			Boundary:       "m5",
			State:          states.State(),
		}
	}
	info := RunInfo{RunID: "run-1", Backend: "discord", ChannelID: "chan-1"}
	checker := health.NewChecker(zerolog.Nop())
	checker.Register("run", health.RunStateCheck(states.State))
	h := NewHandlers(states, status, info, checker, zerolog.Nop())
	return &testServer{
		srv:    NewServer(cfg, h, m.Handler(), zerolog.Nop()),
		states: states,
	}
}

func openConfig() ServerConfig {
	return ServerConfig{AuthConfig: AuthConfig{Mode: "none"}}
}

func (ts *testServer) do(t *testing.T, method, path, key string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := ts.srv.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestServer_Healthz(t *testing.T) {
	ts := newTestServer(t, ServerConfig{AuthConfig: AuthConfig{Mode: "api-key", APIKey: "secret"}})

	resp := ts.do(t, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Readyz(t *testing.T) {
	ts := newTestServer(t, ServerConfig{AuthConfig: AuthConfig{Mode: "api-key", APIKey: "secret"}})

	resp := ts.do(t, "GET", "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ts.states.Stop()
	resp = ts.do(t, "GET", "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var report health.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.False(t, report.Ready)
	assert.Equal(t, health.StatusDown, report.Checks["run"])
}

func TestServer_RequestIDPropagated(t *testing.T) {
	ts := newTestServer(t, openConfig())

	id := "0b6f3f8e-2c1a-4d5e-9f00-123456789abc"
	req, _ := http.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", id)
	resp, err := ts.srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, id, resp.Header.Get("X-Request-ID"))
}

func TestServer_RequestIDInAuditAndTransitionLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	states := purge.NewStateMachine()
	status := func() purge.Snapshot { return purge.Snapshot{State: states.State()} }
	h := NewHandlers(states, status, RunInfo{RunID: "run-1"}, health.NewChecker(zerolog.Nop()), logger)
	srv := NewServer(openConfig(), h, nil, logger)

	id := "5d1c7a52-8e0b-4f4e-a3a1-0c9b2f6d7e10"
	req, _ := http.NewRequest("POST", "/api/v1/pause", nil)
	req.Header.Set("X-Request-ID", id)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tagged []string
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var entry map[string]interface{}
		require.NoError(t, dec.Decode(&entry))
		if entry["request_id"] == id {
			tagged = append(tagged, entry["message"].(string))
		}
	}
	assert.Contains(t, tagged, "control api request")
	assert.Contains(t, tagged, "run pause")
}

func TestServer_Status(t *testing.T) {
	ts := newTestServer(t, openConfig())

	resp := ts.do(t, "GET", "/api/v1/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "discord", body["backend"])
	assert.Equal(t, "chan-1", body["channel_id"])
	assert.Equal(t, "running", body["state"])
	assert.Equal(t, float64(2), body["total_deleted"])
	assert.Equal(t, float64(5), body["total_processed"])
	assert.Equal(t, "m5", body["boundary"])
}

func TestServer_PauseResume(t *testing.T) {
	ts := newTestServer(t, openConfig())

	resp := ts.do(t, "POST", "/api/v1/pause", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tr TransitionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	assert.True(t, tr.Changed)
	assert.Equal(t, purge.Paused, ts.states.State())

	resp = ts.do(t, "POST", "/api/v1/pause", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/v1/resume", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, purge.Running, ts.states.State())

	resp = ts.do(t, "POST", "/api/v1/resume", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_Toggle(t *testing.T) {
	ts := newTestServer(t, openConfig())

	resp := ts.do(t, "POST", "/api/v1/toggle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, purge.Paused, ts.states.State())

	resp = ts.do(t, "POST", "/api/v1/toggle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, purge.Running, ts.states.State())
}

func TestServer_Stop(t *testing.T) {
	ts := newTestServer(t, openConfig())

	resp := ts.do(t, "POST", "/api/v1/stop", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, purge.Stopped, ts.states.State())

	resp = ts.do(t, "POST", "/api/v1/stop", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "invalid_transition", problem.Type)
	assert.Contains(t, problem.Detail, "stopped")

	resp = ts.do(t, "POST", "/api/v1/toggle", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = ts.do(t, "POST", "/api/v1/resume", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t, ServerConfig{AuthConfig: AuthConfig{Mode: "api-key", APIKey: "secret"}})

	resp := ts.do(t, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_NotFound(t *testing.T) {
	ts := newTestServer(t, openConfig())

	resp := ts.do(t, "GET", "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, http.StatusNotFound, problem.Status)
}

func TestServer_RateLimit(t *testing.T) {
	ts := newTestServer(t, ServerConfig{AuthConfig: AuthConfig{Mode: "none"}, RateLimit: 2})

	assert.Equal(t, http.StatusOK, ts.do(t, "GET", "/api/v1/status", "").StatusCode)
	assert.Equal(t, http.StatusOK, ts.do(t, "GET", "/api/v1/status", "").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(t, "GET", "/api/v1/status", "").StatusCode)

	// Health and metrics endpoints are exempt.
	assert.Equal(t, http.StatusOK, ts.do(t, "GET", "/healthz", "").StatusCode)
}
