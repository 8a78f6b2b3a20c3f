package metric

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/switchboard/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCollector(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCollector("test-component", "test_counter", counter)
	require.NoError(t, err)
	counter.Inc()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_counter" {
			found = true
			break
		}
	}
	assert.True(t, found, "Counter should be registered in Prometheus registry")
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	require.NoError(t, registry.RegisterCollector("svc", "dup_gauge", gauge))

	err := registry.RegisterCollector("svc", "dup_gauge", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Same collector under another key collides inside prometheus
	err = registry.RegisterCollector("other", "dup_gauge",
		prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"}))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "gone_gauge", Help: "gone"})
	require.NoError(t, registry.RegisterCollector("svc", "gone_gauge", gauge))

	assert.True(t, registry.Unregister("svc", "gone_gauge"))
	assert.False(t, registry.Unregister("svc", "gone_gauge"))

	// Can be registered again afterwards
	require.NoError(t, registry.RegisterCollector("svc", "gone_gauge", gauge))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("concurrent_counter_%d", i)
			errs <- registry.RegisterCollector("svc", name,
				prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: "c"}))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestCoreMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.RecordHTTPRequest("/api/metrics/{node}", http.MethodPut, 404, 5*time.Millisecond)
	m.RecordTick("ttl", "run", time.Millisecond)
	m.RecordTick("ttl", "skipped", 0)
	m.RecordExpired(3)
	m.RecordExpired(0)
	m.RecordReload(true, 4)
	m.RecordReload(false, 0)
	m.RecordIngestSkipped("realtime", "not_found")
	m.RecordChangePublished("nats", nil)
	m.RecordFeedStatus("mqtt", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/metrics/{node}", "PUT", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ticks.WithLabelValues("ttl", "skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TTLExpired))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Generation))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reloads.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestSkipped.WithLabelValues("realtime", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangesPublished.WithLabelValues("nats", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedConnected.WithLabelValues("mqtt")))
}

func TestCoreMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTick("ttl", "run", time.Millisecond)
		m.RecordRealtimeClients("events", 3)
		m.RecordReload(true, 1)
	})

	var registry *MetricsRegistry
	assert.Nil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordRealtimeClients("sensors", 2)

	srv := httptest.NewServer(registry.Handler(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `switchboard_realtime_clients{namespace="sensors"} 2`)
	assert.Contains(t, string(body), "go_goroutines")
}
