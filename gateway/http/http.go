// Package http provides the REST control adapter of the switchboard gateway.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/gateway"
	"github.com/c360/switchboard/metric"
	"github.com/c360/switchboard/pkg/eventid"
	"github.com/c360/switchboard/sensors"
)

// Prefix is where the control routes are mounted.
const Prefix = "/api"

// Reloader swaps in a new registry generation.
type Reloader func(ctx context.Context) (sensors.ReloadResult, error)

// BuildInfo is reported by /info/version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// Option is a functional option for configuring a Gateway
type Option func(*Gateway)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics records requests and ingest outcomes in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(g *Gateway) {
		g.metrics = registry.CoreMetrics()
	}
}

// WithNotifier sets the sink told about accepted writes
func WithNotifier(notifier gateway.ChangeNotifier) Option {
	return func(g *Gateway) {
		g.notifier = notifier
	}
}

// WithReloader replaces the default reload (registry reload plus a reload
// change notification) with the dispatcher's own sequence.
func WithReloader(reload Reloader) Option {
	return func(g *Gateway) {
		if reload != nil {
			g.reload = reload
		}
	}
}

// WithBuildInfo sets what /info/version reports
func WithBuildInfo(info BuildInfo) Option {
	return func(g *Gateway) {
		g.info = info
	}
}

// WithEventIDs shares an event ID generator with the other ingest paths
func WithEventIDs(events *eventid.Generator) Option {
	return func(g *Gateway) {
		if events != nil {
			g.events = events
		}
	}
}

// Gateway translates REST calls into registry operations. It keeps no state of
// its own beyond its collaborators.
type Gateway struct {
	registry *sensors.Registry
	config   gateway.Config
	notifier gateway.ChangeNotifier
	reload   Reloader
	events   *eventid.Generator
	info     BuildInfo
	started  time.Time

	logger  *slog.Logger
	metrics *metric.Metrics
}

var _ gateway.RouteRegistrar = (*Gateway)(nil)

// NewGateway creates the control adapter over registry
func NewGateway(registry *sensors.Registry, config gateway.Config, opts ...Option) (*Gateway, error) {
	if registry == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway",
			"sensor registry is required")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Gateway", "NewGateway", "config validation")
	}

	g := &Gateway{
		registry: registry,
		config:   config,
		events:   &eventid.Generator{},
		info:     BuildInfo{Version: "dev"},
		started:  time.Now(),
		logger:   slog.Default().With("component", "http-gateway"),
	}
	g.reload = g.defaultReload
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// RegisterRoutes mounts the control routes under Prefix on r.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Route(Prefix, func(api chi.Router) {
		api.Use(middleware.RealIP)
		api.Use(g.requestID)
		api.Use(g.instrument)
		api.Use(middleware.Recoverer)
		if g.config.CORSEnabled() {
			api.Use(cors.Handler(cors.Options{
				AllowedOrigins:   g.config.CORSOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Content-Type", requestIDHeader},
				ExposedHeaders:   []string{requestIDHeader},
				AllowCredentials: false,
				MaxAge:           300,
			}))
		}
		api.Use(g.limitBody)

		api.Route("/metrics", func(m chi.Router) {
			m.Get("/", g.handleList)
			m.Get("/by_gw", g.handleByGateway)
			m.Get("/by_node", g.handleByNode)
			m.Get("/by_sensor", g.handleBySensor)
			m.Put("/default", g.handleDefault)
			m.Put("/reset", g.handleReset)
			m.Put("/inc/{node}", g.handleSet(true))
			m.Put("/{node}", g.handleSet(false))
			m.Get("/{node}", g.handleNodeMetrics)
			m.Get("/{node}/{sensor}", g.handleSensorMetrics)
		})
		api.Put("/state/reload", g.handleReload)
		api.Get("/state/dump", g.handleDump)
		api.Get("/info/version", g.handleVersion)
		api.Get("/info/myip", g.handleMyIP)
	})
}

func (g *Gateway) defaultReload(ctx context.Context) (sensors.ReloadResult, error) {
	res, err := g.registry.Reload()
	g.metrics.RecordReload(err == nil, res.Generation)
	if err != nil {
		return res, err
	}
	g.notify(ctx, gateway.Change{
		Kind:       gateway.ChangeReload,
		Channel:    gateway.ChannelAPI,
		EventID:    eventid.Event(ctx),
		Generation: res.Generation,
		Time:       time.Now(),
	})
	return res, nil
}

func (g *Gateway) notify(ctx context.Context, change gateway.Change) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.NotifyChange(ctx, change); err != nil {
		eventid.Logger(ctx, g.logger).Debug("Change notification incomplete", "error", err)
	}
}
