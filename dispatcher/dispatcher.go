package dispatcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/gateway"
	gwhttp "github.com/c360/switchboard/gateway/http"
	"github.com/c360/switchboard/gateway/realtime"
	"github.com/c360/switchboard/health"
	"github.com/c360/switchboard/input/mqtt"
	"github.com/c360/switchboard/metric"
	"github.com/c360/switchboard/natsclient"
	"github.com/c360/switchboard/pkg/eventid"
	"github.com/c360/switchboard/scheduler"
	"github.com/c360/switchboard/sensors"
)

// Paths served next to the control and websocket routes
const (
	PathMetrics = "/metrics"
	PathHealth  = "/healthz"
)

const systemName = "switchboard"

// Dispatcher owns every component of the gateway and their lifecycle.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger

	registry *sensors.Registry
	metrics  *metric.MetricsRegistry
	monitor  *health.Monitor
	events   *eventid.Generator
	fanout   *gateway.Fanout

	api      *gwhttp.Gateway
	realtime *realtime.Server
	ticker   *scheduler.Ticker
	nats     *natsclient.Client
	bridge   *mqtt.Bridge
	router   chi.Router

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	started  bool
}

// New validates cfg, loads the sensor configuration and wires all components.
// Nothing is started.
func New(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		cfg:     cfg,
		logger:  logger.With("component", "dispatcher"),
		metrics: metric.NewMetricsRegistry(),
		monitor: health.NewMonitor(),
		events:  &eventid.Generator{},
	}

	registry, err := sensors.New(cfg.Sensors, sensors.WithLogger(logger.With("component", "registry")))
	if err != nil {
		return nil, errors.WrapFatal(err, "Dispatcher", "New", "load sensor configuration")
	}
	d.registry = registry

	if err := d.metrics.RegisterCollector("sensors", "values", metric.NewSensorCollector(registry)); err != nil {
		return nil, errors.WrapFatal(err, "Dispatcher", "New", "register sensor collector")
	}

	d.fanout = gateway.NewFanout(logger.With("component", "fanout"), d.metrics.CoreMetrics())
	d.buildRealtime(logger)
	if err := d.buildFeeds(logger); err != nil {
		return nil, err
	}

	d.api, err = gwhttp.NewGateway(registry, cfg.Gateway,
		gwhttp.WithLogger(logger.With("component", "api")),
		gwhttp.WithMetrics(d.metrics),
		gwhttp.WithNotifier(d.fanout),
		gwhttp.WithReloader(d.Reload),
		gwhttp.WithBuildInfo(cfg.Build),
		gwhttp.WithEventIDs(d.events))
	if err != nil {
		return nil, err
	}

	d.ticker, err = scheduler.NewTicker("ttl", cfg.TickInterval, d.tick,
		scheduler.WithLogger(logger.With("component", "ticker")),
		scheduler.WithMetrics(d.metrics))
	if err != nil {
		return nil, err
	}

	d.monitor.Register("registry", d.registryHealth)
	d.monitor.Register("ticker", d.ticker.Health)
	if d.nats != nil {
		d.monitor.Register("nats", d.nats.Health)
	}
	if d.bridge != nil {
		d.monitor.Register("mqtt", d.bridge.Health)
	}

	d.router = d.buildRouter()
	return d, nil
}

func (d *Dispatcher) buildRealtime(logger *slog.Logger) {
	opts := []realtime.Option{
		realtime.WithLogger(logger.With("component", "realtime")),
		realtime.WithMetrics(d.metrics),
		realtime.WithOrigins(d.cfg.WebsocketOrigins),
		realtime.WithSendQueue(d.cfg.RealtimeSendQueue),
	}
	d.realtime = &realtime.Server{
		Sensors: realtime.NewSensorsNamespace(d.registry, d.fanout, d.events, opts...),
		Events:  realtime.NewEventsNamespace(d.registry, opts...),
	}
	if d.cfg.BroadcastOnChange {
		d.fanout.Add("events", d.realtime.Events)
	}
}

func (d *Dispatcher) buildFeeds(logger *slog.Logger) error {
	if d.cfg.NATS.URL != "" {
		client, err := natsclient.NewClient(d.cfg.NATS.URL,
			natsclient.WithLogger(logger.With("component", "nats")),
			natsclient.WithMetrics(d.metrics),
			natsclient.WithName(systemName),
			natsclient.WithTLS(d.cfg.NATS.TLS))
		if err != nil {
			return err
		}
		d.nats = client
		d.fanout.Add("nats", natsclient.NewChangeFeed(client, d.cfg.NATS.Subject, logger.With("component", "change-feed")))
	}

	if d.cfg.MQTT != nil {
		bridge, err := mqtt.NewBridge(*d.cfg.MQTT, d.registry,
			mqtt.WithLogger(logger.With("component", "mqtt")),
			mqtt.WithMetrics(d.metrics),
			mqtt.WithNotifier(d.fanout),
			mqtt.WithEventIDs(d.events))
		if err != nil {
			return err
		}
		d.bridge = bridge
	}
	return nil
}

func (d *Dispatcher) buildRouter() chi.Router {
	r := chi.NewRouter()
	d.api.RegisterRoutes(r)
	d.realtime.RegisterRoutes(r)
	r.Method(http.MethodGet, PathMetrics, d.metrics.Handler(d.logger))
	r.Method(http.MethodGet, PathHealth, d.monitor.Handler(systemName))
	return r
}

// tick expires values whose TTL ran out.
func (d *Dispatcher) tick(context.Context) error {
	d.metrics.CoreMetrics().RecordExpired(d.registry.TickTTL())
	return nil
}

func (d *Dispatcher) registryHealth() health.Status {
	return health.NewHealthy("registry", fmt.Sprintf("generation %d, %d gateways",
		d.registry.Generation(), len(d.registry.Gateways())))
}

// Start runs the ticker, connects the optional brokers and starts serving.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Dispatcher", "Start", "start gateway")
	}

	if err := d.ticker.Start(ctx); err != nil {
		return err
	}
	if d.nats != nil {
		if err := d.nats.Connect(ctx); err != nil {
			d.stopStarted(time.Second)
			return err
		}
	}
	if d.bridge != nil {
		if err := d.bridge.Start(ctx); err != nil {
			d.stopStarted(time.Second)
			return err
		}
	}

	ln, err := net.Listen("tcp", d.cfg.Address)
	if err != nil {
		d.stopStarted(time.Second)
		return errors.WrapFatal(err, "Dispatcher", "Start", "listen on "+d.cfg.Address)
	}
	d.listener = ln
	d.server = &http.Server{
		Handler:           d.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(d.logger.Handler(), slog.LevelWarn),
	}

	server := d.server
	go func() {
		if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			d.logger.Error("HTTP server error", "error", err)
		}
	}()

	d.started = true
	d.logger.Info("Switchboard listening",
		"address", ln.Addr().String(),
		"generation", d.registry.Generation(),
		"tick_interval", d.cfg.TickInterval,
		"broadcast_on_change", d.cfg.BroadcastOnChange,
		"nats", d.nats != nil,
		"mqtt", d.bridge != nil)
	return nil
}

// stopStarted unwinds a partially completed Start.
func (d *Dispatcher) stopStarted(timeout time.Duration) {
	if d.bridge != nil {
		_ = d.bridge.Stop(timeout)
	}
	if d.nats != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		_ = d.nats.Close(ctx)
		cancel()
	}
	_ = d.ticker.Stop(timeout)
}

// Stop shuts down in reverse start order, sharing timeout between the steps.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}
	d.started = false

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	remaining := func() time.Duration {
		if deadline, ok := ctx.Deadline(); ok {
			if left := time.Until(deadline); left > 0 {
				return left
			}
		}
		return 0
	}

	var errs []error
	start := time.Now()

	if err := d.server.Shutdown(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, "Dispatcher", "Stop", "shutdown HTTP server"))
	}
	d.realtime.Close(remaining())

	if d.bridge != nil {
		if err := d.bridge.Stop(remaining()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.ticker.Stop(remaining()); err != nil {
		errs = append(errs, err)
	}
	if d.nats != nil {
		if err := d.nats.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	d.server, d.listener = nil, nil
	d.logger.Info("Switchboard stopped", "duration_ms", time.Since(start).Milliseconds(), "errors", len(errs))
	return stderrors.Join(errs...)
}

// Reload reloads the sensor configuration on behalf of the control API.
func (d *Dispatcher) Reload(ctx context.Context) (sensors.ReloadResult, error) {
	return d.ReloadFrom(ctx, gateway.ChannelAPI)
}

// ReloadFrom swaps in a new registry generation, notifies the change sinks
// and, when enabled, pushes the new configuration to every joined room.
// On failure the current generation stays in service.
func (d *Dispatcher) ReloadFrom(ctx context.Context, channel string) (sensors.ReloadResult, error) {
	res, err := d.registry.Reload()
	d.metrics.CoreMetrics().RecordReload(err == nil, res.Generation)
	if err != nil {
		return res, err
	}

	change := gateway.Change{
		Kind:       gateway.ChangeReload,
		EventID:    eventid.Event(ctx),
		Channel:    channel,
		Generation: res.Generation,
		Time:       time.Now(),
	}
	if err := d.fanout.NotifyChange(ctx, change); err != nil {
		d.logger.Debug("Reload notification incomplete", "error", err)
	}

	if d.cfg.PushConfigOnReload {
		rooms := d.realtime.Sensors.RefreshRooms()
		d.logger.Info("Pushed configuration to rooms", "rooms", rooms, "generation", res.Generation)
	}
	return res, nil
}

// Handler returns the root HTTP handler.
func (d *Dispatcher) Handler() http.Handler {
	return d.router
}

// Addr returns the bound listener address, or nil before Start.
func (d *Dispatcher) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Registry returns the sensor registry.
func (d *Dispatcher) Registry() *sensors.Registry {
	return d.registry
}

// Metrics returns the metrics registry.
func (d *Dispatcher) Metrics() *metric.MetricsRegistry {
	return d.metrics
}

// Health returns the aggregate health of all components.
func (d *Dispatcher) Health() health.Status {
	return d.monitor.AggregateHealth(systemName)
}
