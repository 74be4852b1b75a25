package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luongdev/fsmeasure/pkg/calculator"
	"github.com/luongdev/fsmeasure/pkg/connection"
	"github.com/luongdev/fsmeasure/pkg/measure"
)

type fakeConnManager struct {
	status map[string]connection.ConnectionStatus
}

func (f *fakeConnManager) Start(ctx context.Context) error { return nil }
func (f *fakeConnManager) Stop() error                     { return nil }
func (f *fakeConnManager) GetStatus() map[string]connection.ConnectionStatus {
	return f.status
}

func newTestServer(t *testing.T, connected bool) (*HTTPServer, *measure.CallMetrics) {
	t.Helper()

	buf, err := measure.New(16)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		buf.Insert(measure.NewRecord(float64(i), 0.1, 0.2, 1.5, 0, 0, uint32(i/2), 2))
	}

	reg := prometheus.NewRegistry()
	sample := prometheus.NewCounter(prometheus.CounterOpts{Name: "fsmeasure_sample_total", Help: "sample"})
	reg.MustRegister(sample)
	sample.Inc()

	cm := &fakeConnManager{status: map[string]connection.ConnectionStatus{
		"fs1": {InstanceName: "fs1", Connected: connected, LastEventAt: time.Unix(1700000000, 0)},
		"fs2": {InstanceName: "fs2", LastError: errors.New("connection refused")},
	}}

	s := NewHTTPServer(Options{
		ConnManager:  cm,
		Source:       buf,
		Calculator:   calculator.NewQoSCalculator(10),
		Gatherer:     reg,
		PushInterval: 20 * time.Millisecond,
	})
	return s, buf
}

func TestHealth(t *testing.T) {
	for _, connected := range []bool{true, false} {
		s, _ := newTestServer(t, connected)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "connection refused", resp.Connections["fs2"].LastError)
		if connected {
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "healthy", resp.Status)
			assert.NotEmpty(t, resp.Connections["fs1"].LastEvent)
		} else {
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.Equal(t, "unhealthy", resp.Status)
		}
	}
}

func TestReady(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())

	s, _ = newTestServer(t, false)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, true)
	for _, path := range []string{"/health", "/ready", "/stats"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fsmeasure_sample_total 1")
}

func TestStats(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var q calculator.QoSMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, 4, q.Rows)
	assert.Equal(t, uint32(1), q.FailedCalls)
	assert.Equal(t, uint32(2), q.Sessions)
	require.NotNil(t, q.SeizureFailRate)
	assert.InDelta(t, 1.0/3.0, *q.SeizureFailRate, 1e-9)
	assert.InDelta(t, 1.0, q.InstantaneousRate, 1e-9)
	assert.InDelta(t, 1.5, q.CallSetupLatency.P50, 1e-9)
}

func TestStatsWithoutSource(t *testing.T) {
	s := NewHTTPServer(Options{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatsStream(t *testing.T) {
	s, buf := newTestServer(t, true)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/stats"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	var first calculator.QoSMetrics
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 4, first.Rows)

	buf.Insert(measure.NewRecord(4, 0.1, 0.2, 1.5, 0, 0, 2, 2))

	rows := first.Rows
	for i := 0; i < 50 && rows != 5; i++ {
		var next calculator.QoSMetrics
		require.NoError(t, conn.ReadJSON(&next))
		rows = next.Rows
	}
	assert.Equal(t, 5, rows)
}

func TestStopClosesStreams(t *testing.T) {
	s, _ := newTestServer(t, true)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	s.server = &http.Server{}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/stats"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var q calculator.QoSMetrics
	require.NoError(t, conn.ReadJSON(&q))

	require.NoError(t, s.Stop())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.NoError(t, s.Stop(), "second stop is a no-op")
}
