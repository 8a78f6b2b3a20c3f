package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric the gateway exports.
const Namespace = "switchboard"

// Metrics contains the gateway's own operational metrics (not sensor values).
// Record methods are no-ops on a nil *Metrics.
type Metrics struct {
	// Control adapter
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Realtime gateway
	RealtimeClients *prometheus.GaugeVec
	RealtimeEvents  *prometheus.CounterVec

	// Ingest paths (api, realtime, mqtt)
	IngestUpdates *prometheus.CounterVec
	IngestSkipped *prometheus.CounterVec

	// Ticker
	Ticks        *prometheus.CounterVec
	TickDuration *prometheus.HistogramVec
	TTLExpired   prometheus.Counter

	// Configuration generations
	Reloads    *prometheus.CounterVec
	Generation prometheus.Gauge

	// Change feed
	ChangesPublished *prometheus.CounterVec
	FeedConnected    *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all gateway metrics
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of control API requests",
			},
			[]string{"route", "method", "status"},
		),

		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Control API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		RealtimeClients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "realtime",
				Name:      "clients",
				Help:      "Number of connected realtime clients",
			},
			[]string{"namespace"},
		),

		RealtimeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "realtime",
				Name:      "events_received_total",
				Help:      "Total number of realtime events received from clients",
			},
			[]string{"namespace", "event"},
		),

		IngestUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "ingest",
				Name:      "updates_total",
				Help:      "Total number of node updates applied to the registry",
			},
			[]string{"channel"},
		),

		IngestSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "ingest",
				Name:      "skipped_total",
				Help:      "Total number of node updates skipped",
			},
			[]string{"channel", "reason"},
		),

		Ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "ticker",
				Name:      "ticks_total",
				Help:      "Total number of ticks by result (run, skipped, failed)",
			},
			[]string{"task", "result"},
		),

		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "ticker",
				Name:      "duration_seconds",
				Help:      "Tick task duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"task"},
		),

		TTLExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "ticker",
				Name:      "ttl_expired_total",
				Help:      "Total number of sensor values expired by ttl",
			},
		),

		Reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "config",
				Name:      "reloads_total",
				Help:      "Total number of configuration reloads by result",
			},
			[]string{"result"},
		),

		Generation: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "config",
				Name:      "generation",
				Help:      "Configuration generation currently in service",
			},
		),

		ChangesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "changes",
				Name:      "published_total",
				Help:      "Total number of change notifications by sink and result",
			},
			[]string{"sink", "result"},
		),

		FeedConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "feed",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
			[]string{"broker"},
		),
	}
}

// RecordHTTPRequest counts a finished control API request
func (c *Metrics) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.HTTPRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordRealtimeClients sets the connected client gauge of a namespace
func (c *Metrics) RecordRealtimeClients(namespace string, count int) {
	if c == nil {
		return
	}
	c.RealtimeClients.WithLabelValues(namespace).Set(float64(count))
}

// RecordRealtimeEvent counts an inbound realtime event
func (c *Metrics) RecordRealtimeEvent(namespace, event string) {
	if c == nil {
		return
	}
	c.RealtimeEvents.WithLabelValues(namespace, event).Inc()
}

// RecordIngestUpdate counts an applied node update
func (c *Metrics) RecordIngestUpdate(channel string) {
	if c == nil {
		return
	}
	c.IngestUpdates.WithLabelValues(channel).Inc()
}

// RecordIngestSkipped counts a skipped node update
func (c *Metrics) RecordIngestSkipped(channel, reason string) {
	if c == nil {
		return
	}
	c.IngestSkipped.WithLabelValues(channel, reason).Inc()
}

// RecordTick counts a tick and, unless skipped, its duration
func (c *Metrics) RecordTick(task, result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.WithLabelValues(task, result).Inc()
	if result != "skipped" {
		c.TickDuration.WithLabelValues(task).Observe(duration.Seconds())
	}
}

// RecordExpired adds to the expired sensor counter
func (c *Metrics) RecordExpired(count int) {
	if c == nil {
		return
	}
	if count > 0 {
		c.TTLExpired.Add(float64(count))
	}
}

// RecordReload counts a reload and, on success, the new generation
func (c *Metrics) RecordReload(success bool, generation uint64) {
	if c == nil {
		return
	}
	if !success {
		c.Reloads.WithLabelValues("error").Inc()
		return
	}
	c.Reloads.WithLabelValues("ok").Inc()
	c.Generation.Set(float64(generation))
}

// RecordChangePublished counts a change notification
func (c *Metrics) RecordChangePublished(sink string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.ChangesPublished.WithLabelValues(sink, result).Inc()
}

// RecordFeedStatus updates broker connection status
func (c *Metrics) RecordFeedStatus(broker string, connected bool) {
	if c == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	c.FeedConnected.WithLabelValues(broker).Set(value)
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.HTTPRequests,
		c.HTTPRequestDuration,
		c.RealtimeClients,
		c.RealtimeEvents,
		c.IngestUpdates,
		c.IngestSkipped,
		c.Ticks,
		c.TickDuration,
		c.TTLExpired,
		c.Reloads,
		c.Generation,
		c.ChangesPublished,
		c.FeedConnected,
	}
}
