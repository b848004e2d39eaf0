// Package metrics exposes CoolCache's operational counters as Prometheus
// metrics, scraped through the operator HTTP surface. Every instrument
// hangs off a per-instance registry rather than the package default so
// tests can construct as many Metrics values as they like without
// duplicate-registration panics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every instrument the server updates. All methods are
// safe on a nil receiver so call sites do not have to guard on whether
// the operator surface is enabled.
type Metrics struct {
	registry *prometheus.Registry

	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge

	commandsTotal *prometheus.CounterVec
	commandErrors prometheus.Counter

	pubsubDelivered prometheus.Counter

	savesTotal    prometheus.Counter
	saveFailures  prometheus.Counter
	lastSaveUnix  prometheus.Gauge

	memoryUsage prometheus.Gauge
	cpuUsage    prometheus.Gauge
	goroutines  prometheus.Gauge

	mu        sync.RWMutex
	system    SystemStats
	startTime time.Time
}

// New constructs a Metrics instance with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry:  registry,
		startTime: time.Now(),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "coolcache_connections_total",
			Help: "Total number of accepted client connections",
		}),
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coolcache_connections_active",
			Help: "Number of currently open client connections",
		}),

		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coolcache_commands_total",
			Help: "Total number of commands processed, by command name",
		}, []string{"command"}),
		commandErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "coolcache_command_errors_total",
			Help: "Total number of commands that returned an error reply",
		}),

		pubsubDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "coolcache_pubsub_messages_delivered_total",
			Help: "Total number of published messages queued for subscribers",
		}),

		savesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "coolcache_saves_total",
			Help: "Total number of completed RDB saves",
		}),
		saveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "coolcache_save_failures_total",
			Help: "Total number of failed RDB saves",
		}),
		lastSaveUnix: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coolcache_last_save_timestamp_seconds",
			Help: "Unix timestamp of the last completed RDB save",
		}),

		memoryUsage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coolcache_memory_usage_bytes",
			Help: "Heap bytes currently allocated by the process",
		}),
		cpuUsage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coolcache_cpu_usage_percent",
			Help: "Smoothed system CPU usage percentage",
		}),
		goroutines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coolcache_goroutines",
			Help: "Number of goroutines",
		}),
	}
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterKeyspaceSize publishes a live key-count gauge backed by size.
func (m *Metrics) RegisterKeyspaceSize(size func() float64) {
	if m == nil || size == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "coolcache_keyspace_keys",
		Help: "Number of keys in the keyspace",
	}, size)
}

// RegisterReplication publishes live replication gauges; call only on a
// leader, with callbacks into its offset and replica registry.
func (m *Metrics) RegisterReplication(offset, replicas func() float64) {
	if m == nil || offset == nil || replicas == nil {
		return
	}
	factory := promauto.With(m.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "coolcache_replication_offset_bytes",
		Help: "Leader replication offset in bytes",
	}, offset)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "coolcache_connected_replicas",
		Help: "Number of currently attached replicas",
	}, replicas)
}

// ConnectionOpened records one accepted client connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

// ConnectionClosed records one closed client connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

// CommandProcessed records one dispatched command and whether its reply
// was an error.
func (m *Metrics) CommandProcessed(name string, isError bool) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(name).Inc()
	if isError {
		m.commandErrors.Inc()
	}
}

// PubSubDelivered records n messages queued for subscribers by one PUBLISH.
func (m *Metrics) PubSubDelivered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pubsubDelivered.Add(float64(n))
}

// SaveCompleted records a successful RDB save finishing at unixSeconds.
func (m *Metrics) SaveCompleted(unixSeconds int64) {
	if m == nil {
		return
	}
	m.savesTotal.Inc()
	m.lastSaveUnix.Set(float64(unixSeconds))
}

// SaveFailed records one failed RDB save.
func (m *Metrics) SaveFailed() {
	if m == nil {
		return
	}
	m.saveFailures.Inc()
}

// Uptime reports how long this Metrics instance (and in practice the
// server) has been alive.
func (m *Metrics) Uptime() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime)
}
