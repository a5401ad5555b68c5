package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/localiser/internal/localiser/costmap"
	"github.com/banshee-data/localiser/internal/monitoring"
	"github.com/banshee-data/localiser/internal/version"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// WebServer serves the latest particle cloud as JSON and as an echarts
// scatter over the map.
type WebServer struct {
	address string
	markers *MarkerPublisher
	grid    *costmap.Grid
	server  *http.Server

	mu     sync.Mutex
	latest *MarkerArray
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Markers *MarkerPublisher
	Grid    *costmap.Grid
}

// NewWebServer creates a web server for the given publisher.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		markers: config.Markers,
		grid:    config.Grid,
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the route multiplexer.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/markers", ws.handleMarkers)
	mux.HandleFunc("/debug/particles", ws.handleParticleScatter)
	return mux
}

// Follow subscribes to the marker publisher and keeps the newest array
// until ctx is done. While following, the publisher has a subscriber and
// builds markers on every snapshot.
func (ws *WebServer) Follow(ctx context.Context) {
	ch, cancel := ws.markers.Subscribe(1)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case arr, ok := <-ch:
				if !ok {
					return
				}
				ws.mu.Lock()
				ws.latest = &arr
				ws.mu.Unlock()
			}
		}
	}()
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	ws.Follow(ctx)

	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (ws *WebServer) current() (MarkerArray, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.latest != nil {
		return *ws.latest, true
	}
	return ws.markers.Latest()
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("JSON encoding error: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	ws.writeJSON(w, status, map[string]string{"error": msg})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"version":     version.Version,
		"subscribers": ws.markers.SubscriberCount(),
	})
}

// handleMarkers returns the latest marker array.
func (ws *WebServer) handleMarkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	arr, ok := ws.current()
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, "no particles published yet")
		return
	}
	ws.writeJSON(w, http.StatusOK, arr)
}

// handleParticleScatter renders the particle cloud over the map's lethal
// cells.
// Query params:
//   - max_points (optional; default 5000) caps the map layer
func (ws *WebServer) handleParticleScatter(w http.ResponseWriter, r *http.Request) {
	arr, ok := ws.current()
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, "no particles published yet")
		return
	}

	maxPoints := 5000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	extend := func(x, y float64) {
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}

	var walls []opts.ScatterData
	stride := 1
	if ws.grid != nil {
		cells := ws.grid.LethalCells()
		if len(cells) > maxPoints {
			stride = int(math.Ceil(float64(len(cells)) / float64(maxPoints)))
		}
		walls = make([]opts.ScatterData, 0, len(cells)/stride+1)
		for i := 0; i < len(cells); i += stride {
			walls = append(walls, opts.ScatterData{Value: []interface{}{cells[i][0], cells[i][1]}})
			extend(cells[i][0], cells[i][1])
		}
	}

	cloud := make([]opts.ScatterData, 0, len(arr.Markers))
	for _, m := range arr.Markers {
		cloud = append(cloud, opts.ScatterData{Value: []interface{}{m.Position[0], m.Position[1]}})
		extend(m.Position[0], m.Position[1])
	}
	if len(walls) == 0 && len(cloud) == 0 {
		minX, maxX, minY, maxY = -1, 1, -1, 1
	}

	// Square axes so the map is not distorted.
	span := math.Max(maxX-minX, maxY-minY)*0.525 + 0.1
	cx, cy := (minX+maxX)/2, (minY+maxY)/2

	particleColor := "#cc1a1a"
	if len(arr.Markers) > 0 {
		particleColor = arr.Markers[0].Color.Hex()
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Localiser Particles", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Particle Cloud", Subtitle: fmt.Sprintf("filter=%s step=%d particles=%d stride=%d", arr.FilterID, arr.Step, len(cloud), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: cx - span, Max: cx + span, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: cy - span, Max: cy + span, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("map", walls, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#999999"}))
	scatter.AddSeries("particles", cloud, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: particleColor}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
