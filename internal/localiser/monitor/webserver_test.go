package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localiser/internal/localiser/costmap"
)

func newTestServer(t *testing.T) (*WebServer, *MarkerPublisher) {
	t.Helper()
	grid, err := costmap.ParseRows([]string{"###", "#.#", "###"}, 1, 0, 0)
	require.NoError(t, err)
	mp := NewMarkerPublisher("map", Green.RGBA(1))
	return NewWebServer(WebServerConfig{Address: "127.0.0.1:0", Markers: mp, Grid: grid}), mp
}

func TestWebServer_Health(t *testing.T) {
	ws, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestWebServer_Markers(t *testing.T) {
	ws, mp := newTestServer(t)
	h := ws.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markers", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/markers", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	_, cancel := mp.Subscribe(1)
	defer cancel()
	require.NoError(t, mp.Publish(context.Background(), snapshot(5)))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var arr MarkerArray
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &arr))
	assert.Equal(t, "f1", arr.FilterID)
	assert.Len(t, arr.Markers, 5)
	assert.Equal(t, 4, arr.Markers[4].ID)
}

func TestWebServer_ParticleScatter(t *testing.T) {
	ws, mp := newTestServer(t)

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/particles", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, cancel := mp.Subscribe(1)
	defer cancel()
	require.NoError(t, mp.Publish(context.Background(), snapshot(8)))

	rec = httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/particles?max_points=200", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	body := rec.Body.String()
	assert.Contains(t, body, "Particle Cloud")
	assert.Contains(t, body, "Localiser Particles")
}

func TestWebServer_FollowKeepsLatest(t *testing.T) {
	ws, mp := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws.Follow(ctx)
	assert.Equal(t, 1, mp.SubscriberCount())
	require.NoError(t, mp.Publish(context.Background(), snapshot(2)))

	assert.Eventually(t, func() bool {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		return ws.latest != nil && len(ws.latest.Markers) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool { return mp.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
}
