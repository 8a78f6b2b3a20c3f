// Package metric provides Prometheus-based metrics for the Switchboard gateway.
//
// Two kinds of series share one registry and one exposition endpoint:
//
//  1. Sensor series: SensorCollector renders the sensor registry on every scrape
//     (switchboard_sensor_value, _hits_total, _duration_seconds,
//     _hit_timestamp_seconds, labelled gw, node, sensor).
//  2. Core metrics: the gateway's own counters and gauges (Metrics type) for
//     the control API, realtime clients, ingest, ticker, reloads and change feed,
//     plus Go runtime and process collectors.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	if err := registry.RegisterCollector("registry", "sensors",
//	    metric.NewSensorCollector(sensorRegistry)); err != nil {
//	    return err
//	}
//	router.Handle("/metrics", registry.Handler(logger))
//
//	registry.CoreMetrics().RecordTick("ttl", "run", elapsed)
//
// # Scrape Consistency
//
// SensorCollector takes a single registry snapshot per Collect call. A scrape
// therefore never mixes values from before and after a tick or write; two
// scrapes need not agree with each other.
//
// # Nil Safety
//
// Record methods on a nil *Metrics do nothing, so components built without a
// registry (as in unit tests) need no guards.
package metric
