package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Publish metrics
	SnapshotsPublished prometheus.Counter
	PublishDuration    prometheus.Histogram
	PublishErrors      prometheus.Counter

	// Consume metrics
	SnapshotsRead    prometheus.Counter
	SnapshotsSkipped prometheus.Counter
	ReadTimeouts     prometheus.Counter
	Disconnects      prometheus.Counter

	// Command metrics
	CommandsSent     *prometheus.CounterVec
	CommandsDropped  prometheus.Counter
	CommandsReceived prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		// Publish metrics
		SnapshotsPublished: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "barlink_snapshots_published_total",
				Help: "Total number of snapshots published to the channel",
			},
		),
		PublishDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "barlink_publish_duration_seconds",
				Help:    "Snapshot encode-and-publish duration in seconds",
				Buckets: []float64{.000001, .000005, .00001, .00005, .0001, .0005, .001, .005},
			},
		),
		PublishErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "barlink_publish_errors_total",
				Help: "Total number of failed publishes",
			},
		),

		// Consume metrics
		SnapshotsRead: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "barlink_snapshots_read_total",
				Help: "Total number of snapshots read from the channel",
			},
		),
		SnapshotsSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "barlink_snapshots_skipped_total",
				Help: "Total number of publishes overwritten before this consumer read them",
			},
		),
		ReadTimeouts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "barlink_read_timeouts_total",
				Help: "Total number of blocking reads that timed out",
			},
		),
		Disconnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "barlink_producer_disconnects_total",
				Help: "Total number of producer liveness failures observed",
			},
		),

		// Command metrics
		CommandsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barlink_commands_sent_total",
				Help: "Total number of commands sent to the window manager",
			},
			[]string{"kind"},
		),
		CommandsDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "barlink_commands_dropped_total",
				Help: "Total number of commands dropped because the ring was full",
			},
		),
		CommandsReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "barlink_commands_received_total",
				Help: "Total number of commands received from bars",
			},
		),

		// WebSocket metrics
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "barlink_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barlink_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "barlink_uptime_seconds",
				Help: "Daemon uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordPublish records one publish attempt
func (m *Metrics) RecordPublish(duration time.Duration, err error) {
	if err != nil {
		m.PublishErrors.Inc()
		return
	}
	m.SnapshotsPublished.Inc()
	m.PublishDuration.Observe(duration.Seconds())
}

// RecordRead records one successful read and the skips it revealed
func (m *Metrics) RecordRead(skipped uint64) {
	m.SnapshotsRead.Inc()
	if skipped > 0 {
		m.SnapshotsSkipped.Add(float64(skipped))
	}
}

// RecordCommandSent records a command sent to the window manager
func (m *Metrics) RecordCommandSent(kind string) {
	m.CommandsSent.WithLabelValues(kind).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
