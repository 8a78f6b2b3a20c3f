package metric

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/switchboard/errors"
)

// collectorKey names a collector registered by a component.
type collectorKey struct {
	component string
	name      string
}

func (k collectorKey) String() string {
	return k.component + "." + k.name
}

// MetricsRegistry owns the Prometheus registry of one gateway: the core
// metrics, the Go runtime collectors and any component collectors.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	core               *Metrics

	mu         sync.Mutex
	components map[collectorKey]prometheus.Collector
}

// NewMetricsRegistry creates a registry with the core gateway metrics and
// the Go runtime and process collectors already registered.
func NewMetricsRegistry() *MetricsRegistry {
	reg := prometheus.NewRegistry()
	core := NewMetrics()

	reg.MustRegister(core.collectors()...)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsRegistry{
		prometheusRegistry: reg,
		core:               core,
		components:         make(map[collectorKey]prometheus.Collector),
	}
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core gateway metrics, nil for a nil registry.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	if r == nil {
		return nil
	}
	return r.core
}

// RegisterCollector adds collector under component/name. Registering the
// same key twice, or a collector whose descriptors clash with one already
// gathered, is an invalid error.
func (r *MetricsRegistry) RegisterCollector(component, name string, collector prometheus.Collector) error {
	key := collectorKey{component: component, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.components[key]; taken {
		return errors.WrapInvalid(fmt.Errorf("collector %s already registered", key),
			"MetricsRegistry", "RegisterCollector", "register "+key.String())
	}

	err := r.prometheusRegistry.Register(collector)
	var clash prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
		r.components[key] = collector
		return nil
	case errors.As(err, &clash):
		return errors.WrapInvalid(err, "MetricsRegistry", "RegisterCollector", "register "+key.String())
	default:
		return errors.WrapFatal(err, "MetricsRegistry", "RegisterCollector", "register "+key.String())
	}
}

// Unregister removes the collector stored under component/name and reports
// whether one was removed.
func (r *MetricsRegistry) Unregister(component, name string) bool {
	key := collectorKey{component: component, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	collector, ok := r.components[key]
	if !ok || !r.prometheusRegistry.Unregister(collector) {
		return false
	}
	delete(r.components, key)
	return true
}
