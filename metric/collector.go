package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/switchboard/sensors"
)

// SnapshotSource is the part of the sensor registry the collector reads.
type SnapshotSource interface {
	Snapshot() *sensors.Snapshot
}

var sensorLabels = []string{"gw", "node", "sensor"}

// SensorCollector exports sensor values as Prometheus metrics.
// Every Collect takes exactly one registry snapshot, so all series of a scrape
// describe the same instant. It keeps no state of its own and is safe for
// concurrent scrapes.
type SensorCollector struct {
	source SnapshotSource

	value        *prometheus.Desc
	hits         *prometheus.Desc
	duration     *prometheus.Desc
	hitTimestamp *prometheus.Desc
}

// NewSensorCollector creates a collector over source.
func NewSensorCollector(source SnapshotSource) *SensorCollector {
	return &SensorCollector{
		source: source,
		value: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "sensor", "value"),
			"Current sensor value (bool sensors export 0 or 1)",
			sensorLabels, nil,
		),
		hits: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "sensor", "hits_total"),
			"Number of accepted writes to the sensor",
			sensorLabels, nil,
		),
		duration: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "sensor", "duration_seconds"),
			"Seconds since the last accepted write",
			sensorLabels, nil,
		),
		hitTimestamp: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "sensor", "hit_timestamp_seconds"),
			"Unix time of the last accepted write",
			sensorLabels, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *SensorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.value
	ch <- c.hits
	ch <- c.duration
	ch <- c.hitTimestamp
}

// Collect implements prometheus.Collector.
func (c *SensorCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	for _, st := range snap.Sensors {
		labels := []string{st.Gateway, st.Node, st.Sensor}

		// str sensors and absent values have no sample
		if st.Value != nil {
			if f, ok := st.Value.Float(); ok {
				ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, f, labels...)
			}
		}

		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.HitsTotal), labels...)

		if st.DurationSeconds != nil {
			ch <- prometheus.MustNewConstMetric(c.duration, prometheus.GaugeValue, *st.DurationSeconds, labels...)
		}
		if st.HitTimestamp != nil {
			ch <- prometheus.MustNewConstMetric(c.hitTimestamp, prometheus.GaugeValue, *st.HitTimestamp, labels...)
		}
	}
}
