package sensors

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/switchboard/config"
	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/types"
)

// sensor is the mutable per-sensor state. Only touched with Registry.mu held.
type sensor struct {
	gw, node, id string

	kind types.Kind
	ttl  int
	def  types.Value
	// hasDef is false when no default was configured
	hasDef bool

	value    types.Value
	hasValue bool

	ttlRemaining int
	// armed is set by a write and cleared when the ttl runs out or on restore
	armed        bool
	hits         uint64
	hitTime      time.Time
	duration     float64
	hasDuration  bool
	expired      bool
}

// restore puts the default (or nothing) back as the current value.
func (s *sensor) restore() {
	s.value, s.hasValue = s.def, s.hasDef
	s.ttlRemaining = s.ttl
	s.armed = false
	s.expired = false
}

type node struct {
	gw      string
	sensors map[string]*sensor
}

// generation is one immutable sensor layout built from a configuration.
// Values inside it mutate; membership never does.
type generation struct {
	id       uint64
	loadedAt time.Time
	nodes    map[string]*node
	gateways map[string][]string
	// ordered by gateway, node, sensor
	order []*sensor
}

// Registry is the single owner of all sensor state. Every exported method is
// atomic with respect to every other: writers take the lock exclusively,
// readers copy what they need under one shared acquisition.
type Registry struct {
	mu      sync.RWMutex
	gen     *generation
	nextGen uint64

	source config.Source
	clock  func() time.Time
	logger *slog.Logger
}

// New loads the initial configuration from source and builds the first generation.
// A configuration error here is fatal for the caller.
func New(source config.Source, opts ...Option) (*Registry, error) {
	if source == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Registry", "New", "check sensor source")
	}
	o := applyOptions(opts...)

	r := &Registry{
		source: source,
		clock:  o.clock,
		logger: o.logger,
	}

	cfg, err := source.Load()
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "New", "load sensor configuration")
	}
	r.nextGen++
	r.gen = buildGeneration(cfg, r.nextGen, r.clock())

	r.logger.Info("Sensor registry loaded",
		"generation", r.gen.id,
		"gateways", len(r.gen.gateways),
		"nodes", len(r.gen.nodes),
		"sensors", len(r.gen.order))
	return r, nil
}

func buildGeneration(cfg *config.SensorsConfig, id uint64, now time.Time) *generation {
	g := &generation{
		id:       id,
		loadedAt: now,
		nodes:    make(map[string]*node),
		gateways: make(map[string][]string, len(cfg.Gateways)),
	}

	for _, gw := range cfg.GatewayIDs() {
		nodeIDs := make([]string, 0, len(cfg.Gateways[gw]))
		for nodeID := range cfg.Gateways[gw] {
			nodeIDs = append(nodeIDs, nodeID)
		}
		sort.Strings(nodeIDs)
		g.gateways[gw] = nodeIDs

		for _, nodeID := range nodeIDs {
			sensorCfgs := cfg.Gateways[gw][nodeID]
			n := &node{gw: gw, sensors: make(map[string]*sensor, len(sensorCfgs))}
			g.nodes[nodeID] = n

			sensorIDs := make([]string, 0, len(sensorCfgs))
			for sensorID := range sensorCfgs {
				sensorIDs = append(sensorIDs, sensorID)
			}
			sort.Strings(sensorIDs)

			for _, sensorID := range sensorIDs {
				sc := sensorCfgs[sensorID]
				// Validate already ran; an empty type is the default kind
				kind, _ := types.ParseKind(string(sc.Type))
				s := &sensor{gw: gw, node: nodeID, id: sensorID, kind: kind, ttl: sc.TTL}
				if sc.Default != nil {
					if def, err := types.ParseValue(kind, sc.Default); err == nil {
						s.def, s.hasDef = def, true
					}
				}
				s.restore()
				n.sensors[sensorID] = s
				g.order = append(g.order, s)
			}
		}
	}
	return g
}

// Update describes the outcome of SetValues.
type Update struct {
	Node     string                   `json:"node"`
	Gateway  string                   `json:"gw"`
	Applied  map[string]SensorMetrics `json:"applied"`
	Rejected errors.ValidationErrors  `json:"rejected,omitempty"`
}

// SetValues applies fields to node as absolute values, or as deltas when increment is set.
//
// An unknown node or any unknown sensor fails the whole call with ErrNotFound
// and nothing changes. Otherwise each field is parsed under its sensor's kind;
// bad fields are listed in Update.Rejected and the rest are applied. An error is
// returned for rejections only when no field could be applied.
func (r *Registry) SetValues(nodeID string, fields map[string]any, increment bool) (Update, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.gen.nodes[nodeID]
	if !ok {
		return Update{}, errors.WrapInvalid(errors.ErrNotFound, "Registry", "SetValues",
			fmt.Sprintf("lookup node %s", nodeID))
	}
	for field := range fields {
		if _, ok := n.sensors[field]; !ok {
			return Update{}, errors.WrapInvalid(errors.ErrNotFound, "Registry", "SetValues",
				fmt.Sprintf("lookup sensor %s/%s", nodeID, field))
		}
	}

	upd := Update{Node: nodeID, Gateway: n.gw, Applied: make(map[string]SensorMetrics, len(fields))}
	now := r.clock()

	for field, raw := range fields {
		s := n.sensors[field]
		v, err := types.ParseValue(s.kind, raw)
		reason := ""
		switch {
		case err != nil, increment && !s.kind.Numeric():
			reason = rejectReason(s, raw, increment)
		case increment:
			if v, err = incrementBase(s).Add(v); err != nil {
				reason = fmt.Sprintf("increment by %v out of range for %s", raw, s.kind)
			}
		}
		if reason != "" {
			if upd.Rejected == nil {
				upd.Rejected = make(errors.ValidationErrors)
			}
			upd.Rejected[field] = reason
			continue
		}

		s.value, s.hasValue = v, true
		s.hits++
		s.hitTime = now
		s.duration, s.hasDuration = 0, true
		s.ttlRemaining = s.ttl
		s.armed = true
		s.expired = false
		upd.Applied[field] = metricsOf(s)
	}

	if len(upd.Applied) == 0 && len(upd.Rejected) > 0 {
		return upd, errors.WrapInvalid(upd.Rejected, "Registry", "SetValues",
			fmt.Sprintf("parse fields of node %s", nodeID))
	}
	return upd, nil
}

// incrementBase is the value an increment applies to: current, else default, else zero.
func incrementBase(s *sensor) types.Value {
	switch {
	case s.hasValue:
		return s.value
	case s.hasDef:
		return s.def
	default:
		return types.ZeroValue(s.kind)
	}
}

func rejectReason(s *sensor, raw any, increment bool) string {
	if increment && !s.kind.Numeric() {
		return fmt.Sprintf("%s sensor cannot be incremented", s.kind)
	}
	return fmt.Sprintf("%v is not a valid %s", raw, s.kind)
}

// NodeMetrics returns the metrics of every sensor on node.
func (r *Registry) NodeMetrics(nodeID string) (map[string]SensorMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.gen.nodes[nodeID]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrNotFound, "Registry", "NodeMetrics",
			fmt.Sprintf("lookup node %s", nodeID))
	}
	out := make(map[string]SensorMetrics, len(n.sensors))
	for id, s := range n.sensors {
		out[id] = metricsOf(s)
	}
	return out, nil
}

// SensorMetrics returns the metrics of one sensor.
func (r *Registry) SensorMetrics(nodeID, sensorID string) (SensorMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.gen.nodes[nodeID]
	if !ok {
		return SensorMetrics{}, errors.WrapInvalid(errors.ErrNotFound, "Registry", "SensorMetrics",
			fmt.Sprintf("lookup node %s", nodeID))
	}
	s, ok := n.sensors[sensorID]
	if !ok {
		return SensorMetrics{}, errors.WrapInvalid(errors.ErrNotFound, "Registry", "SensorMetrics",
			fmt.Sprintf("lookup sensor %s/%s", nodeID, sensorID))
	}
	return metricsOf(s), nil
}

// Snapshot copies the whole registry under a single read lock.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Generation: r.gen.id,
		Taken:      r.clock(),
		Sensors:    make([]SensorState, len(r.gen.order)),
	}
	for i, s := range r.gen.order {
		snap.Sensors[i] = stateOf(s)
	}
	return snap
}

// TickTTL advances staleness by one period. It refreshes duration_seconds from
// the last hit and counts down ttls, restoring the default when one runs out.
// It never creates a value or touches hit counters. Returns how many sensors expired.
func (r *Registry) TickTTL() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	expired := 0
	for _, s := range r.gen.order {
		if !s.hitTime.IsZero() {
			// Staleness never goes backwards, even if the clock does
			if d := now.Sub(s.hitTime).Seconds(); d > s.duration {
				s.duration = d
			}
			s.hasDuration = true
		}

		if s.ttl <= 0 || !s.armed {
			continue
		}
		s.ttlRemaining--
		if s.ttlRemaining <= 0 {
			s.value, s.hasValue = s.def, s.hasDef
			s.ttlRemaining = 0
			s.armed = false
			s.expired = true
			expired++
		}
	}

	if expired > 0 {
		r.logger.Debug("Sensor values expired", "count", expired, "generation", r.gen.id)
	}
	return expired
}

// DefaultValues sets every sensor to its default value (absent when none) and
// returns the resulting metrics grouped by node. Hit metadata is kept.
func (r *Registry) DefaultValues() map[string]map[string]SensorMetrics {
	r.mu.Lock()
	for _, s := range r.gen.order {
		s.restore()
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	return snap.ByNode(false)
}

// ResetValues restores defaults and clears hit counters, hit timestamps and durations.
func (r *Registry) ResetValues() map[string]map[string]SensorMetrics {
	r.mu.Lock()
	for _, s := range r.gen.order {
		s.restore()
		s.hits = 0
		s.hitTime = time.Time{}
		s.duration, s.hasDuration = 0, false
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	return snap.ByNode(false)
}

// SensorInfo is the configuration of one sensor as sent to joining clients.
type SensorInfo struct {
	Sensor  string       `json:"sensor"`
	Type    types.Kind   `json:"type"`
	TTL     int          `json:"ttl"`
	Default *types.Value `json:"default"`
}

// NodeConfig is the configuration of one node.
type NodeConfig struct {
	Node    string       `json:"node"`
	Sensors []SensorInfo `json:"sensors"`
}

// ConfigForGateway returns the node configurations of gw sorted by node and sensor.
// An unknown gateway yields an empty slice.
func (r *Registry) ConfigForGateway(gw string) []NodeConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodeIDs := r.gen.gateways[gw]
	out := make([]NodeConfig, 0, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		n := r.gen.nodes[nodeID]
		nc := NodeConfig{Node: nodeID, Sensors: make([]SensorInfo, 0, len(n.sensors))}
		for _, s := range r.gen.order {
			if s.node != nodeID {
				continue
			}
			info := SensorInfo{Sensor: s.id, Type: s.kind, TTL: s.ttl}
			if s.hasDef {
				def := s.def
				info.Default = &def
			}
			nc.Sensors = append(nc.Sensors, info)
		}
		out = append(out, nc)
	}
	return out
}

// ReloadResult summarises a successful reload.
type ReloadResult struct {
	Generation uint64 `json:"generation"`
	Gateways   int    `json:"gateways"`
	Nodes      int    `json:"nodes"`
	Sensors    int    `json:"sensors"`
}

// Reload loads the configuration source again and swaps in a fresh generation.
// Values are not carried over. On error the current generation stays in service.
func (r *Registry) Reload() (ReloadResult, error) {
	cfg, err := r.source.Load()
	if err != nil {
		r.logger.Error("Sensor configuration reload failed", "error", err)
		return ReloadResult{}, errors.Wrap(err, "Registry", "Reload", "load sensor configuration")
	}

	r.mu.Lock()
	r.nextGen++
	gen := buildGeneration(cfg, r.nextGen, r.clock())
	r.gen = gen
	r.mu.Unlock()

	res := ReloadResult{
		Generation: gen.id,
		Gateways:   len(gen.gateways),
		Nodes:      len(gen.nodes),
		Sensors:    len(gen.order),
	}
	r.logger.Info("Sensor registry reloaded",
		"generation", res.Generation,
		"gateways", res.Gateways,
		"nodes", res.Nodes,
		"sensors", res.Sensors)
	return res, nil
}

// Generation returns the id of the configuration generation in service.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen.id
}

// Gateways returns the configured gateway ids, sorted.
func (r *Registry) Gateways() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.gen.gateways))
	for gw := range r.gen.gateways {
		out = append(out, gw)
	}
	sort.Strings(out)
	return out
}

// NodeGateway returns the gateway node belongs to in the current generation.
func (r *Registry) NodeGateway(nodeID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.gen.nodes[nodeID]
	if !ok {
		return "", false
	}
	return n.gw, true
}

// Metrics is shorthand for Snapshot().Metrics(skipAbsent).
func (r *Registry) Metrics(skipAbsent bool) []Metric {
	return r.Snapshot().Metrics(skipAbsent)
}

// Dump is shorthand for Snapshot().Dump().
func (r *Registry) Dump() Dump {
	return r.Snapshot().Dump()
}
