package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semdiff/config"
	"github.com/c360studio/semdiff/engine"
	"github.com/c360studio/semdiff/metrics"
	"github.com/c360studio/semdiff/report"
)

type recordingPublisher struct {
	envs []*report.Envelope
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, env *report.Envelope) error {
	p.envs = append(p.envs, env)
	return p.err
}

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	cfg := config.DefaultConfig().Server
	cfg.MaxBodyBytes = 4096
	srv := httptest.NewServer(New(engine.NewDefault(), cfg, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHandleCompare(t *testing.T) {
	pub := &recordingPublisher{}
	srv := newTestServer(t, WithPublisher(pub))

	body := `{"previous": "1.0 Purpose\nDo X.\n2.0 Scope\nApplies to Y.", "current": "1.0 Purpose\nDo X.\n2.0 Scope\nApplies to Y and Z."}`
	resp, data := post(t, srv.URL+"/api/compare", body)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var env struct {
		ID     string            `json:"id"`
		Kind   string            `json:"kind"`
		Result engine.Comparison `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "compare", env.Kind)
	assert.Equal(t, engine.Summary{Modified: 1, Unchanged: 1, Editorial: 1}, env.Result.Summary)

	require.Len(t, pub.envs, 1)
	assert.Equal(t, env.ID, pub.envs[0].ID)
}

func TestHandleVerify(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	srv := newTestServer(t, WithPublisher(pub))

	body := `{"source": "1.0 Purpose\n...\n2.0 Scope\n...", "derived": "Purpose text only"}`
	resp, data := post(t, srv.URL+"/api/verify", body)

	// Publish failures do not fail the request
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Result struct {
			MissingHeadings []string `json:"missing_headings"`
			IsComplete      bool     `json:"is_complete"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, []string{"2.0 Scope"}, env.Result.MissingHeadings)
	assert.False(t, env.Result.IsComplete)
	assert.Len(t, pub.envs, 1)
}

func TestHandleSegment(t *testing.T) {
	srv := newTestServer(t)

	resp, data := post(t, srv.URL+"/api/segment", `{"text": "1.0 Purpose\nDo X.\nAppendix A\nForms."}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Kind   string `json:"kind"`
		Result []struct {
			Key string `json:"key"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "segment", env.Kind)
	require.Len(t, env.Result, 2)
	assert.Equal(t, "num_purpose", env.Result[0].Key)
	assert.Equal(t, "app_a", env.Result[1].Key)
}

func TestHandleDiff(t *testing.T) {
	srv := newTestServer(t)

	resp, data := post(t, srv.URL+"/api/diff", `{"old": "may be reviewed", "new": "must be reviewed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Result []struct {
			Text string `json:"text"`
			Kind string `json:"kind"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	require.Len(t, env.Result, 3)
	assert.Equal(t, "removed", env.Result[0].Kind)
	assert.Equal(t, "may", env.Result[0].Text)
	assert.Equal(t, "added", env.Result[1].Kind)
}

func TestHandlers_RequestErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"wrong method", http.MethodGet, "/api/compare", "", http.StatusMethodNotAllowed, "method_not_allowed"},
		{"malformed json", http.MethodPost, "/api/compare", `{"previous":`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", http.MethodPost, "/api/diff", `{"before": "a"}`, http.StatusBadRequest, "invalid_json"},
		{"body too large", http.MethodPost, "/api/segment", `{"text": "` + strings.Repeat("x", 5000) + `"}`, http.StatusRequestEntityTooLarge, "body_too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			var errResp ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
			assert.Equal(t, tt.wantCode, errResp.Error)
			assert.NotEmpty(t, errResp.Message)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New()
	eng, err := engine.New(nil, engine.WithMetrics(m))
	require.NoError(t, err)
	srv := httptest.NewServer(New(eng, config.DefaultConfig().Server, WithMetrics(m)).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	post(t, srv.URL+"/api/diff", `{"old": "a", "new": "b"}`)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `semdiff_operations_total{operation="diff"} 1`)
}

func TestMetricsRouteAbsentWithoutMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListenAndServe_Shutdown(t *testing.T) {
	cfg := config.DefaultConfig().Server
	cfg.Addr = "127.0.0.1:0"
	s := New(engine.NewDefault(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}
