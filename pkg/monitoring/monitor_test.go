package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedStatus(s Status) StatusFunc {
	return func(context.Context) (Status, error) { return s, nil }
}

func TestMonitor_Health(t *testing.T) {
	mon := NewMonitor(NewMetrics(nil), fixedStatus(Status{
		Primary:          true,
		Endpoint:         "vertview-alice",
		TrackedDocuments: 3,
		Unresolved:       1,
		WatchedFiles:     3,
		WatchedDirs:      2,
	}), nil)

	srv := httptest.NewServer(mon.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Primary)
	assert.Equal(t, "vertview-alice", status.Endpoint)
	assert.Equal(t, 3, status.TrackedDocuments)
	assert.Equal(t, 1, status.Unresolved)
	assert.NotEmpty(t, status.Uptime)
	assert.False(t, status.Timestamp.IsZero())
}

func TestMonitor_HealthUnavailable(t *testing.T) {
	mon := NewMonitor(nil, func(context.Context) (Status, error) {
		return Status{}, errors.New("engine stopped")
	}, nil)

	rec := httptest.NewRecorder()
	mon.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMonitor_Live(t *testing.T) {
	mon := NewMonitor(nil, nil, nil)

	rec := httptest.NewRecorder()
	mon.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", rec.Body.String())
}

func TestMonitor_MetricsEndpoint(t *testing.T) {
	metrics := NewMetrics(nil)
	metrics.IncrementRecoveriesSucceeded()
	mon := NewMonitor(metrics, fixedStatus(Status{TrackedDocuments: 4, WatchedFiles: 4, WatchedDirs: 2}), nil)

	rec := httptest.NewRecorder()
	mon.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "vertview_recoveries_succeeded_total 1")
	assert.Contains(t, body, "vertview_tracked_documents 4")
	assert.Contains(t, body, "vertview_watched_files 4")
	assert.Contains(t, body, "vertview_watched_directories 2")
	assert.Contains(t, body, "vertview_unresolved_documents 0")
}

func TestMonitor_GetMetrics(t *testing.T) {
	metrics := NewMetrics(nil)
	mon := NewMonitor(metrics, nil, nil)
	assert.Same(t, metrics, mon.GetMetrics())
}

func TestMonitor_ServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	mon := NewMonitor(nil, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- mon.Serve(ctx, addr) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + addr + "/live")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.HasPrefix(string(body), "alive"))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestMonitor_LogMetricsStopsOnCancel(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	mon := NewMonitor(nil, fixedStatus(Status{}), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mon.LogMetrics(ctx, 5*time.Millisecond)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("LogMetrics did not return")
	}
}
