package mqtt

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/gateway"
	"github.com/c360/switchboard/health"
	"github.com/c360/switchboard/metric"
	"github.com/c360/switchboard/pkg/eventid"
	"github.com/c360/switchboard/pkg/tlsutil"
	"github.com/c360/switchboard/sensors"
)

const brokerLabel = "mqtt"

// Option configures a Bridge
type Option func(*Bridge)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records ingest and connection metrics in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(b *Bridge) {
		if registry != nil {
			b.metrics = registry.CoreMetrics()
		}
	}
}

// WithNotifier receives a change for every applied message
func WithNotifier(n gateway.ChangeNotifier) Option {
	return func(b *Bridge) { b.notifier = n }
}

// WithEventIDs shares the event id counter with the other channels
func WithEventIDs(g *eventid.Generator) Option {
	return func(b *Bridge) {
		if g != nil {
			b.events = g
		}
	}
}

func withClientFactory(f func(*paho.ClientOptions) paho.Client) Option {
	return func(b *Bridge) { b.newClient = f }
}

// Bridge applies sensor values published on MQTT topics to the registry.
type Bridge struct {
	cfg       Config
	tlsConfig *tls.Config
	registry  *sensors.Registry
	notifier  gateway.ChangeNotifier
	events    *eventid.Generator
	logger    *slog.Logger
	metrics   *metric.Metrics
	newClient func(*paho.ClientOptions) paho.Client

	mu        sync.Mutex
	client    paho.Client
	running   atomic.Bool
	startTime time.Time

	received     atomic.Int64
	applied      atomic.Int64
	failures     atomic.Int64
	lastActivity atomic.Value // time.Time
}

// NewBridge validates cfg and builds a bridge over registry.
func NewBridge(cfg Config, registry *sensors.Registry, opts ...Option) (*Bridge, error) {
	if registry == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Bridge", "NewBridge", "require registry")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		registry:  registry,
		events:    &eventid.Generator{},
		logger:    slog.Default().With("component", "mqtt-bridge"),
		newClient: paho.NewClient,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lastActivity.Store(time.Time{})
	return b, nil
}

// Config returns the validated configuration
func (b *Bridge) Config() Config {
	return b.cfg
}

func (b *Bridge) clientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(b.cfg.ConnectTimeout).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username).SetPassword(b.cfg.Password)
	}
	if b.tlsConfig != nil {
		opts.SetTLSConfig(b.tlsConfig)
	}
	return opts
}

// Start connects to the broker. Subscriptions are (re)made on every connect.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Bridge", "Start", "start bridge")
	}

	client := b.newClient(b.clientOptions())
	if err := wait(ctx, client.Connect(), b.cfg.ConnectTimeout); err != nil {
		return errors.WrapTransient(err, "Bridge", "Start", "connect to "+b.cfg.Broker)
	}

	b.client = client
	b.startTime = time.Now()
	b.running.Store(true)
	b.logger.Info("MQTT bridge started", "broker", b.cfg.Broker, "topic", b.cfg.Topic)
	return nil
}

// Stop disconnects, allowing in-flight work up to timeout.
func (b *Bridge) Stop(timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running.Swap(false) {
		return nil
	}
	b.client.Disconnect(uint(timeout.Milliseconds()))
	b.metrics.RecordFeedStatus(brokerLabel, false)
	b.logger.Info("MQTT bridge stopped", "received", b.received.Load(), "applied", b.applied.Load())
	return nil
}

func (b *Bridge) onConnect(client paho.Client) {
	b.metrics.RecordFeedStatus(brokerLabel, true)

	filters := b.cfg.Filters()
	token := client.SubscribeMultiple(filters, b.handleMessage)
	if err := wait(context.Background(), token, b.cfg.ConnectTimeout); err != nil {
		b.failures.Add(1)
		b.logger.Error("MQTT subscribe failed", "topic", b.cfg.Topic, "error", err)
		return
	}
	b.logger.Info("MQTT subscribed", "filters", len(filters), "topic", b.cfg.Topic)
}

func (b *Bridge) onConnectionLost(_ paho.Client, err error) {
	b.failures.Add(1)
	b.metrics.RecordFeedStatus(brokerLabel, false)
	b.logger.Warn("MQTT connection lost", "error", err)
}

func (b *Bridge) handleMessage(_ paho.Client, msg paho.Message) {
	_ = b.Handle(msg.Topic(), msg.Payload())
}

// Handle applies one message. Unknown nodes or sensors are skipped without
// error; malformed topics or payloads and fully rejected writes return one.
func (b *Bridge) Handle(topic string, payload []byte) error {
	b.received.Add(1)
	b.lastActivity.Store(time.Now())

	node, increment, ok := b.parseTopic(topic)
	if !ok {
		b.metrics.RecordIngestSkipped(gateway.ChannelMQTT, "malformed")
		return errors.WrapInvalid(errors.ErrInvalidData, "Bridge", "Handle", "parse topic "+topic)
	}

	fields, err := decodeFields(payload)
	if err != nil {
		b.failures.Add(1)
		b.metrics.RecordIngestSkipped(gateway.ChannelMQTT, "malformed")
		b.logger.Warn("Ignoring malformed MQTT payload", "topic", topic, "size", len(payload), "error", err)
		return err
	}

	eventID := b.events.Next(eventid.PrefixMQTT)
	ctx := eventid.WithEvent(context.Background(), eventID)
	log := eventid.Logger(ctx, b.logger)
	log.Info("MQTT in", "node", node, "increment", increment, "fields", fields)

	upd, err := b.registry.SetValues(node, fields, increment)
	switch {
	case errors.IsNotFound(err):
		b.metrics.RecordIngestSkipped(gateway.ChannelMQTT, "not_found")
		log.Debug("Skipping unknown node or sensor", "node", node)
		return nil
	case err != nil:
		b.failures.Add(1)
		b.metrics.RecordIngestSkipped(gateway.ChannelMQTT, "invalid")
		log.Warn("MQTT values rejected", "node", node, "error", err)
		return err
	}
	if len(upd.Rejected) > 0 {
		log.Warn("Some fields rejected", "node", node, "rejected", upd.Rejected)
	}

	b.applied.Add(1)
	b.metrics.RecordIngestUpdate(gateway.ChannelMQTT)
	if b.notifier != nil {
		_ = b.notifier.NotifyChange(ctx, gateway.ChangeFromUpdate(upd, increment, gateway.ChannelMQTT, eventID))
	}
	return nil
}

// parseTopic splits <topic>/<node> or <topic>/inc/<node>.
func (b *Bridge) parseTopic(topic string) (node string, increment, ok bool) {
	rest, found := strings.CutPrefix(topic, b.cfg.Topic+"/")
	if !found {
		return "", false, false
	}
	if n, inc := strings.CutPrefix(rest, "inc/"); inc {
		rest, increment = n, true
	}
	if rest == "" || strings.Contains(rest, "/") {
		return "", false, false
	}
	return rest, increment, true
}

func decodeFields(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, errors.WrapInvalid(err, "Bridge", "decodeFields", "decode payload")
	}
	if fields == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Bridge", "decodeFields", "decode payload")
	}
	return fields, nil
}

// Health reports the bridge for the health monitor.
func (b *Bridge) Health() health.Status {
	if !b.running.Load() {
		return health.NewUnhealthy("mqtt", "not started")
	}

	b.mu.Lock()
	connected := b.client != nil && b.client.IsConnectionOpen()
	uptime := time.Since(b.startTime)
	b.mu.Unlock()

	var st health.Status
	if connected {
		st = health.NewHealthy("mqtt", fmt.Sprintf("subscribed to %s", b.cfg.Topic))
	} else {
		st = health.NewDegraded("mqtt", "reconnecting")
	}
	last, _ := b.lastActivity.Load().(time.Time)
	return st.WithMetrics(&health.Metrics{
		Uptime:       uptime,
		ErrorCount:   b.failures.Load(),
		Processed:    b.applied.Load(),
		LastActivity: last,
	})
}

// wait blocks until token completes, ctx is done or timeout passes.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.ErrConnectionTimeout
	}
}
