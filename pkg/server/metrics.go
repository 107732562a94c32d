package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/crystal-mush/gridmush/pkg/grid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the game server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	game      *Game
	startTime time.Time
	registry  *prometheus.Registry

	playersConnected *prometheus.GaugeVec
	objectsTotal     prometheus.Gauge
	gridRooms        prometheus.Gauge
	commandsTotal    prometheus.Counter
	gridMovesTotal   *prometheus.CounterVec
	gridEditsTotal   *prometheus.CounterVec
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
}

// NewMetrics creates the game metrics on their own registry.
func NewMetrics(game *Game, startTime time.Time) *Metrics {
	m := &Metrics{
		game:      game,
		startTime: startTime,
		registry:  prometheus.NewRegistry(),
		playersConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridmush_players_connected",
			Help: "Number of currently connected players by transport.",
		}, []string{"transport"}),
		objectsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridmush_objects_total",
			Help: "Total number of objects in the database.",
		}),
		gridRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridmush_grid_rooms",
			Help: "Number of rooms carrying a grid.",
		}),
		commandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridmush_commands_processed_total",
			Help: "Total commands processed since server start.",
		}),
		gridMovesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridmush_grid_moves_total",
			Help: "Grid move attempts by outcome.",
		}, []string{"outcome"}),
		gridEditsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridmush_grid_edits_total",
			Help: "Successful grid edits by operation.",
		}, []string{"op"}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridmush_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridmush_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridmush_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	m.registry.MustRegister(
		m.playersConnected,
		m.objectsTotal,
		m.gridRooms,
		m.commandsTotal,
		m.gridMovesTotal,
		m.gridEditsTotal,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)
	return m
}

// CommandProcessed counts one dispatched command.
func (m *Metrics) CommandProcessed() {
	if m == nil {
		return
	}
	m.commandsTotal.Inc()
}

// GridMove counts one navigator move attempt.
func (m *Metrics) GridMove(kind grid.OutcomeKind) {
	if m == nil {
		return
	}
	m.gridMovesTotal.WithLabelValues(kind.String()).Inc()
}

// GridEdit counts one successful builder edit.
func (m *Metrics) GridEdit(op string) {
	if m == nil {
		return
	}
	m.gridEditsTotal.WithLabelValues(op).Inc()
}

// Update refreshes all gauge metrics from current game state.
func (m *Metrics) Update() {
	counts := map[TransportType]int{TransportTCP: 0, TransportWebSocket: 0}
	for _, d := range m.game.Conns.AllDescriptors() {
		if d.State == ConnConnected {
			counts[d.Transport]++
		}
	}
	for transport, n := range counts {
		m.playersConnected.WithLabelValues(transport.String()).Set(float64(n))
	}

	m.game.mu.RLock()
	m.objectsTotal.Set(float64(len(m.game.DB.Objects)))
	m.game.mu.RUnlock()
	m.gridRooms.Set(float64(m.game.Grids.Len()))

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		h.ServeHTTP(w, r)
	})
}
