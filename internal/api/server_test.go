package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/readlater-migrate/internal/pipeline"
)

type fixedStatus struct {
	summary pipeline.Summary
}

func (f fixedStatus) Snapshot() pipeline.Summary { return f.summary }

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, nil, nil)
	rec := do(t, srv.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestReadyzFollowsRunState(t *testing.T) {
	t.Parallel()

	starting := NewServer(fixedStatus{summary: pipeline.Summary{State: pipeline.StateInit}}, nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, do(t, starting.Handler(), "/readyz").Code)

	streaming := NewServer(fixedStatus{summary: pipeline.Summary{State: pipeline.StateStreaming}}, nil, nil)
	require.Equal(t, http.StatusOK, do(t, streaming.Handler(), "/readyz").Code)
}

func TestStatusReturnsSnapshot(t *testing.T) {
	t.Parallel()

	srv := NewServer(fixedStatus{summary: pipeline.Summary{
		RunID:     "run-1",
		State:     pipeline.StateStreaming,
		Pages:     2,
		Fetched:   10,
		Processed: 7,
		Succeeded: 6,
		Failed:    1,
	}}, nil, nil)

	rec := do(t, srv.Handler(), "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "STREAMING", body["state"])
	require.EqualValues(t, 6, body["succeeded"])
	require.EqualValues(t, 3, body["pending"])
}

func TestStatusWithoutRun(t *testing.T) {
	t.Parallel()

	rec := do(t, NewServer(nil, nil, nil).Handler(), "/v1/status")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := do(t, NewServer(nil, nil, nil).Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRequestIDHeaderPropagates(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec := httptest.NewRecorder()
	NewServer(nil, nil, nil).Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(nil, nil, nil)
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
