package gateway

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/metric"
	"github.com/c360/switchboard/sensors"
)

// ChangeKind names what caused a change.
type ChangeKind string

// Change kinds
const (
	ChangeSet     ChangeKind = "set"
	ChangeInc     ChangeKind = "inc"
	ChangeDefault ChangeKind = "default"
	ChangeReset   ChangeKind = "reset"
	ChangeReload  ChangeKind = "reload"
)

// Ingest channels
const (
	ChannelAPI      = "api"
	ChannelRealtime = "realtime"
	ChannelMQTT     = "mqtt"
	// ChannelSignal marks reloads requested with SIGHUP
	ChannelSignal = "signal"
)

// Change is the notification payload for one accepted state change.
//
// Node-scoped changes (set, inc) carry the node, its gateway and the metrics of
// the sensors that were written. Registry-wide changes (default, reset, reload)
// leave Node empty and carry the metrics of every node in Nodes.
type Change struct {
	Kind       ChangeKind                                  `json:"kind"`
	EventID    string                                      `json:"event_id,omitempty"`
	Channel    string                                      `json:"channel"`
	Gateway    string                                      `json:"gw,omitempty"`
	Node       string                                      `json:"node,omitempty"`
	Sensors    map[string]sensors.SensorMetrics            `json:"sensors,omitempty"`
	Nodes      map[string]map[string]sensors.SensorMetrics `json:"nodes,omitempty"`
	Generation uint64                                      `json:"generation,omitempty"`
	Time       time.Time                                   `json:"time"`
}

// ChangeFromUpdate builds a node-scoped change from the result of SetValues.
func ChangeFromUpdate(upd sensors.Update, increment bool, channel, eventID string) Change {
	kind := ChangeSet
	if increment {
		kind = ChangeInc
	}
	return Change{
		Kind:    kind,
		EventID: eventID,
		Channel: channel,
		Gateway: upd.Gateway,
		Node:    upd.Node,
		Sensors: upd.Applied,
		Time:    time.Now(),
	}
}

// Subject returns the routing key of the change: the node for node-scoped
// changes, the kind otherwise.
func (c Change) Subject() string {
	if c.Node != "" {
		return c.Node
	}
	return "_" + string(c.Kind)
}

// Config holds configuration shared by the HTTP-facing adapters
type Config struct {
	// CORSOrigins lists allowed CORS origins; empty disables CORS.
	// Use ["*"] for development only.
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// MaxRequestSize limits request body size in bytes (default: 1MB)
	MaxRequestSize int64 `json:"max_request_size,omitempty"`
}

// Validate ensures the gateway configuration is valid, filling defaults
func (c *Config) Validate() error {
	if c.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}

	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 1024 * 1024 // 1MB default
	}

	if c.MaxRequestSize > 100*1024*1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot exceed 100MB")
	}

	for i, origin := range c.CORSOrigins {
		if origin == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("cors origin at index %d is empty", i))
		}
	}
	return nil
}

// CORSEnabled reports whether any origin is configured.
func (c Config) CORSEnabled() bool {
	return len(c.CORSOrigins) > 0
}

// DefaultConfig returns default gateway configuration
func DefaultConfig() Config {
	return Config{
		CORSOrigins:    []string{},
		MaxRequestSize: 1024 * 1024, // 1MB
	}
}

type sink struct {
	name     string
	notifier ChangeNotifier
}

// Fanout delivers each change to every registered sink in registration order.
// A failing sink is logged and counted; it never stops delivery to the others.
type Fanout struct {
	mu      sync.RWMutex
	sinks   []sink
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewFanout creates an empty fan-out. metrics may be nil.
func NewFanout(logger *slog.Logger, metrics *metric.Metrics) *Fanout {
	if logger == nil {
		logger = slog.Default().With("component", "changes")
	}
	return &Fanout{logger: logger, metrics: metrics}
}

// Add registers a named sink.
func (f *Fanout) Add(name string, notifier ChangeNotifier) {
	if notifier == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink{name: name, notifier: notifier})
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// NotifyChange implements ChangeNotifier. The returned error joins every sink failure.
func (f *Fanout) NotifyChange(ctx context.Context, change Change) error {
	f.mu.RLock()
	sinks := make([]sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		err := s.notifier.NotifyChange(ctx, change)
		f.metrics.RecordChangePublished(s.name, err)
		if err != nil {
			f.logger.Warn("Change notification failed",
				"sink", s.name, "kind", change.Kind, "node", change.Node,
				"event_id", change.EventID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return stderrors.Join(errs...)
}
