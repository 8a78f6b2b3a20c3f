package sensors

import (
	"time"

	"github.com/c360/switchboard/types"
)

// SensorMetrics are the four exported metrics of a sensor. Absent values are null.
type SensorMetrics struct {
	Value           *types.Value `json:"value"`
	HitsTotal       uint64       `json:"hits_total"`
	HitTimestamp    *float64     `json:"hit_timestamp"`
	DurationSeconds *float64     `json:"duration_seconds"`
}

// SensorState is the full state of one sensor at snapshot time.
type SensorState struct {
	Gateway string `json:"gw"`
	Node    string `json:"node"`
	Sensor  string `json:"sensor"`

	Type         types.Kind   `json:"type"`
	TTL          int          `json:"ttl"`
	TTLRemaining int          `json:"ttl_remaining"`
	Default      *types.Value `json:"default"`
	Expired      bool         `json:"expired"`

	SensorMetrics
}

// Snapshot is an immutable copy of the registry taken under one lock acquisition.
type Snapshot struct {
	Generation uint64
	Taken      time.Time
	// Sensors are ordered by gateway, node, sensor.
	Sensors []SensorState
}

// Metric is one row of the flat metrics listing.
type Metric struct {
	Gateway string `json:"gw"`
	Node    string `json:"node"`
	Sensor  string `json:"sensor"`
	SensorMetrics
}

// Metrics lists every sensor, omitting those without a value when skipAbsent is set.
func (s *Snapshot) Metrics(skipAbsent bool) []Metric {
	out := make([]Metric, 0, len(s.Sensors))
	for _, st := range s.Sensors {
		if skipAbsent && st.Value == nil {
			continue
		}
		out = append(out, Metric{Gateway: st.Gateway, Node: st.Node, Sensor: st.Sensor, SensorMetrics: st.SensorMetrics})
	}
	return out
}

// ByGateway groups metrics as gateway -> node -> sensor.
func (s *Snapshot) ByGateway(skipAbsent bool) map[string]map[string]map[string]SensorMetrics {
	out := make(map[string]map[string]map[string]SensorMetrics)
	for _, st := range s.Sensors {
		if skipAbsent && st.Value == nil {
			continue
		}
		nodes, ok := out[st.Gateway]
		if !ok {
			nodes = make(map[string]map[string]SensorMetrics)
			out[st.Gateway] = nodes
		}
		put(nodes, st.Node, st.Sensor, st.SensorMetrics)
	}
	return out
}

// ByNode groups metrics as node -> sensor.
func (s *Snapshot) ByNode(skipAbsent bool) map[string]map[string]SensorMetrics {
	out := make(map[string]map[string]SensorMetrics)
	for _, st := range s.Sensors {
		if skipAbsent && st.Value == nil {
			continue
		}
		put(out, st.Node, st.Sensor, st.SensorMetrics)
	}
	return out
}

// BySensor groups metrics as sensor -> node.
func (s *Snapshot) BySensor(skipAbsent bool) map[string]map[string]SensorMetrics {
	out := make(map[string]map[string]SensorMetrics)
	for _, st := range s.Sensors {
		if skipAbsent && st.Value == nil {
			continue
		}
		put(out, st.Sensor, st.Node, st.SensorMetrics)
	}
	return out
}

func put(m map[string]map[string]SensorMetrics, outer, inner string, v SensorMetrics) {
	row, ok := m[outer]
	if !ok {
		row = make(map[string]SensorMetrics)
		m[outer] = row
	}
	row[inner] = v
}

// Dump is the full detail view: generation plus every sensor's state grouped
// as gateway -> node -> sensor.
type Dump struct {
	Generation uint64                                       `json:"generation"`
	Taken      float64                                      `json:"taken"`
	Gateways   map[string]map[string]map[string]SensorState `json:"gateways"`
}

// Dump renders the snapshot as a Dump.
func (s *Snapshot) Dump() Dump {
	d := Dump{
		Generation: s.Generation,
		Taken:      unixSeconds(s.Taken),
		Gateways:   make(map[string]map[string]map[string]SensorState),
	}
	for _, st := range s.Sensors {
		nodes, ok := d.Gateways[st.Gateway]
		if !ok {
			nodes = make(map[string]map[string]SensorState)
			d.Gateways[st.Gateway] = nodes
		}
		sensors, ok := nodes[st.Node]
		if !ok {
			sensors = make(map[string]SensorState)
			nodes[st.Node] = sensors
		}
		sensors[st.Sensor] = st
	}
	return d
}

func metricsOf(s *sensor) SensorMetrics {
	m := SensorMetrics{HitsTotal: s.hits}
	if s.hasValue {
		v := s.value
		m.Value = &v
	}
	if !s.hitTime.IsZero() {
		ts := unixSeconds(s.hitTime)
		m.HitTimestamp = &ts
	}
	if s.hasDuration {
		d := s.duration
		m.DurationSeconds = &d
	}
	return m
}

func stateOf(s *sensor) SensorState {
	st := SensorState{
		Gateway:       s.gw,
		Node:          s.node,
		Sensor:        s.id,
		Type:          s.kind,
		TTL:           s.ttl,
		TTLRemaining:  s.ttlRemaining,
		Expired:       s.expired,
		SensorMetrics: metricsOf(s),
	}
	if s.hasDef {
		def := s.def
		st.Default = &def
	}
	return st
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
