package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/statebus/internal/event"
)

type point struct {
	X int `json:"x"`
}

type fakeBuses struct {
	buses []event.Inspector
}

func (f *fakeBuses) Inspectors() []event.Inspector { return f.buses }

func (f *fakeBuses) Lookup(name string) (event.Inspector, bool) {
	for _, b := range f.buses {
		if b.Name() == name {
			return b, true
		}
	}
	return nil, false
}

func newTestMux(t *testing.T) (http.Handler, *prometheus.Registry) {
	t.Helper()
	ctx := context.Background()

	points := event.NewBus[point](nil, event.WithName("points"))
	require.NoError(t, points.RegisterMembers(event.Field("X", func(p *point) *int { return &p.X })))
	require.NoError(t, points.Publish(ctx, "ui.main", event.Unidentified, point{X: 1}))
	require.NoError(t, points.Publish(ctx, "ui.side", event.Unidentified, point{X: 2}))
	require.NoError(t, points.Publish(ctx, "net.in", event.Unidentified, point{X: 3}))
	other := event.NewBus[string](nil, event.WithName("another"))

	reg := prometheus.NewRegistry()
	mux := NewMux(&fakeBuses{buses: []event.Inspector{points, other}}, Options{Registry: reg, Logger: zerolog.Nop()})
	return mux, reg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthz(t *testing.T) {
	mux, _ := newTestMux(t)
	w := get(t, mux, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestReadyz(t *testing.T) {
	ready := false
	mux := NewMux(&fakeBuses{}, Options{Registry: prometheus.NewRegistry(), Ready: func() bool { return ready }})

	w := get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ready = true
	w = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListBuses(t *testing.T) {
	mux, _ := newTestMux(t)
	w := get(t, mux, "/buses")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var body struct {
		Buses []BusSummary `json:"buses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Buses, 2)
	assert.Equal(t, "another", body.Buses[0].Name)
	assert.Equal(t, "points", body.Buses[1].Name)
	assert.Equal(t, uint64(3), body.Buses[1].SyncPublishes)
	assert.Equal(t, 3, body.Buses[1].Topics)
	assert.Equal(t, []string{"X"}, body.Buses[1].Members)
}

func TestGetBus(t *testing.T) {
	mux, _ := newTestMux(t)

	w := get(t, mux, "/buses/points")
	require.Equal(t, http.StatusOK, w.Code)
	var s BusSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, "points", s.Name)

	w = get(t, mux, "/buses/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "unknown bus")
}

func TestBusTopics(t *testing.T) {
	mux, _ := newTestMux(t)

	var body struct {
		Bus    string            `json:"bus"`
		Topics []event.TopicInfo `json:"topics"`
	}

	w := get(t, mux, "/buses/points/topics?match=ui.*")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "points", body.Bus)
	require.Len(t, body.Topics, 2)
	assert.Equal(t, "ui.main", body.Topics[0].Name)
	assert.True(t, body.Topics[0].HasSnapshot)
	assert.Equal(t, map[string]any{"x": float64(1)}, body.Topics[0].Snapshot)

	w = get(t, mux, "/buses/points/topics")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Topics, 3)

	w = get(t, mux, "/buses/another/topics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"topics":[]`)

	w = get(t, mux, "/buses/nope/topics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics(t *testing.T) {
	mux, reg := newTestMux(t)

	get(t, mux, "/buses/points")
	get(t, mux, "/buses/points")
	get(t, mux, "/buses/nope")

	w := get(t, mux, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "statebus_http_requests_total")

	// Route patterns keep label cardinality bounded.
	n, err := testutil.GatherAndCount(reg, "statebus_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "/buses/{name} 200, /buses/{name} 404 and /metrics")
}

func TestNewMux_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewMux(&fakeBuses{}, Options{Registry: reg})
	b := NewMux(&fakeBuses{}, Options{Registry: reg})

	get(t, a, "/healthz")
	get(t, b, "/healthz")

	expected := `
# HELP statebus_http_requests_total Total number of HTTP requests
# TYPE statebus_http_requests_total counter
statebus_http_requests_total{method="GET",path="/healthz",status="200"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "statebus_http_requests_total"))
}

func TestServer_StartShutdown(t *testing.T) {
	srv := NewServer("127.0.0.1:0", NewMux(&fakeBuses{}, Options{Registry: prometheus.NewRegistry()}), zerolog.Nop())
	require.NoError(t, srv.Start(context.Background()))

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, srv.Shutdown(ctx))
}
