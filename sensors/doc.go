// Package sensors holds the in-memory sensor registry shared by every adapter.
//
// The registry is built from a config.Source and owns one configuration
// generation at a time. Runtime writes may only change values of configured
// sensors; the set of gateways, nodes and sensors changes only on Reload, which
// replaces the generation wholesale.
//
// # Concurrency
//
// A single sync.RWMutex guards all state. SetValues, TickTTL, DefaultValues,
// ResetValues and Reload take it exclusively; reads and Snapshot take it shared
// and copy out. Views (Metrics, ByGateway, ByNode, BySensor, Dump) are computed
// from a Snapshot outside the lock, so a scrape or dump always reflects one
// instant of the registry.
//
// # Per Sensor Metrics
//
//   - value: current value, absent when never reported or expired without default
//   - hits_total: accepted writes since start or last reset
//   - hit_timestamp: unix seconds of the last accepted write
//   - duration_seconds: seconds since the last write, refreshed each tick
//
// A sensor with ttl > 0 counts down one per tick after each write; at zero the
// value falls back to the configured default, or becomes absent.
package sensors
