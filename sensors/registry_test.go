package sensors

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/switchboard/config"
	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/types"
)

const testSensors = `
gw1:
  n1:
    temp: {type: float}
    count: {type: int, ttl: 2, default: 0}
    door: {type: bool, default: false}
  n2:
    label: {type: str, ttl: 1}
gw2:
  n3:
    level: {type: float, ttl: 3}
`

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func yamlSource(t *testing.T, doc string) config.Source {
	t.Helper()
	return config.SourceFunc(func() (*config.SensorsConfig, error) {
		cfg, err := config.ParseSensors([]byte(doc))
		if err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	})
}

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	r, err := New(yamlSource(t, testSensors), WithClock(clock.Now))
	require.NoError(t, err)
	return r, clock
}

func valueOf(t *testing.T, r *Registry, node, sensor string) *types.Value {
	t.Helper()
	m, err := r.SensorMetrics(node, sensor)
	require.NoError(t, err)
	return m.Value
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = New(yamlSource(t, "gw1: {n1: {temp: {type: nope}}}"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.True(t, errors.IsFatal(err))
}

func TestSetValues_RoundTrip(t *testing.T) {
	r, clock := newTestRegistry(t)

	upd, err := r.SetValues("n1", map[string]any{"temp": "21.5"}, false)
	require.NoError(t, err)
	assert.Equal(t, "gw1", upd.Gateway)
	require.Contains(t, upd.Applied, "temp")
	assert.Empty(t, upd.Rejected)

	m, err := r.SensorMetrics("n1", "temp")
	require.NoError(t, err)
	require.NotNil(t, m.Value)
	assert.Equal(t, 21.5, m.Value.Interface())
	assert.Equal(t, uint64(1), m.HitsTotal)
	require.NotNil(t, m.HitTimestamp)
	assert.Equal(t, float64(clock.Now().Unix()), *m.HitTimestamp)
	require.NotNil(t, m.DurationSeconds)
	assert.Equal(t, 0.0, *m.DurationSeconds)

	// Exactly once in a snapshot
	count := 0
	for _, metric := range r.Metrics(true) {
		if metric.Node == "n1" && metric.Sensor == "temp" {
			count++
			assert.Equal(t, 21.5, metric.Value.Interface())
		}
	}
	assert.Equal(t, 1, count)
}

func TestSetValues_Increment(t *testing.T) {
	r, _ := newTestRegistry(t)

	// count has default 0, temp has none: both start from zero
	_, err := r.SetValues("n1", map[string]any{"count": "3", "temp": 1.5}, true)
	require.NoError(t, err)
	_, err = r.SetValues("n1", map[string]any{"count": 4, "temp": "2"}, true)
	require.NoError(t, err)

	assert.Equal(t, int64(7), valueOf(t, r, "n1", "count").Interface())
	assert.Equal(t, 3.5, valueOf(t, r, "n1", "temp").Interface())

	m, err := r.SensorMetrics("n1", "count")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.HitsTotal)
}

func TestSetValues_IncrementOverflowRejected(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.SetValues("n1", map[string]any{"count": "9223372036854775807"}, false)
	require.NoError(t, err)

	upd, err := r.SetValues("n1", map[string]any{"count": 1, "temp": 2.5}, true)
	require.NoError(t, err)
	assert.Equal(t, "increment by 1 out of range for int", upd.Rejected["count"])
	assert.Contains(t, upd.Applied, "temp")
	assert.Equal(t, int64(9223372036854775807), valueOf(t, r, "n1", "count").Interface())

	_, err = r.SetValues("n1", map[string]any{"count": 1}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidValue)
}

func TestSetValues_NotFoundMutatesNothing(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.SetValues("n9", map[string]any{"temp": "1"}, false)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = r.SetValues("n1", map[string]any{"temp": "1", "pressure": "2"}, false)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	m, err := r.SensorMetrics("n1", "temp")
	require.NoError(t, err)
	assert.Nil(t, m.Value, "known field must not be applied when another is unknown")
	assert.Zero(t, m.HitsTotal)
}

func TestSetValues_Rejections(t *testing.T) {
	r, _ := newTestRegistry(t)

	upd, err := r.SetValues("n1", map[string]any{"temp": "20", "count": "many"}, false)
	require.NoError(t, err, "partial success is not an error")
	assert.Contains(t, upd.Applied, "temp")
	assert.Equal(t, "many is not a valid int", upd.Rejected["count"])
	assert.Equal(t, int64(0), valueOf(t, r, "n1", "count").Interface(), "rejected field keeps its default")

	upd, err = r.SetValues("n1", map[string]any{"door": "ajar"}, false)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	var ve errors.ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve, "door")
	assert.Empty(t, upd.Applied)

	_, err = r.SetValues("n1", map[string]any{"door": "true"}, true)
	require.Error(t, err)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "bool sensor cannot be incremented", ve["door"])
}

func TestNodeMetrics(t *testing.T) {
	r, _ := newTestRegistry(t)

	metrics, err := r.NodeMetrics("n1")
	require.NoError(t, err)
	assert.Len(t, metrics, 3)
	assert.Nil(t, metrics["temp"].Value)
	assert.Equal(t, false, metrics["door"].Value.Interface())

	_, err = r.NodeMetrics("nope")
	assert.True(t, errors.IsNotFound(err))

	_, err = r.SensorMetrics("n1", "nope")
	assert.True(t, errors.IsNotFound(err))
}

func TestTickTTL_Expiry(t *testing.T) {
	r, clock := newTestRegistry(t)

	_, err := r.SetValues("n1", map[string]any{"count": "5"}, false)
	require.NoError(t, err)
	_, err = r.SetValues("n2", map[string]any{"label": "hello"}, false)
	require.NoError(t, err)

	clock.Advance(time.Second)
	assert.Equal(t, 1, r.TickTTL(), "label has ttl 1")
	assert.Nil(t, valueOf(t, r, "n2", "label"), "no default: value becomes absent")
	assert.Equal(t, int64(5), valueOf(t, r, "n1", "count").Interface())

	clock.Advance(time.Second)
	assert.Equal(t, 1, r.TickTTL())
	assert.Equal(t, int64(0), valueOf(t, r, "n1", "count").Interface(), "expiry restores the default")

	// Already expired sensors do not expire again
	clock.Advance(time.Second)
	assert.Equal(t, 0, r.TickTTL())

	m, err := r.SensorMetrics("n1", "count")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.HitsTotal, "ticks never count as hits")
	require.NotNil(t, m.DurationSeconds)
	assert.Equal(t, 3.0, *m.DurationSeconds)

	dump := r.Dump()
	state := dump.Gateways["gw1"]["n1"]["count"]
	assert.True(t, state.Expired)
	assert.Equal(t, 0, state.TTLRemaining)

	// A new write re-arms the ttl
	_, err = r.SetValues("n1", map[string]any{"count": "9"}, false)
	require.NoError(t, err)
	state = r.Dump().Gateways["gw1"]["n1"]["count"]
	assert.False(t, state.Expired)
	assert.Equal(t, 2, state.TTLRemaining)
}

func TestTickTTL_StalenessNonDecreasing(t *testing.T) {
	r, clock := newTestRegistry(t)

	_, err := r.SetValues("n3", map[string]any{"level": 1.0}, false)
	require.NoError(t, err)

	var last float64
	for i := 0; i < 5; i++ {
		if i == 3 {
			clock.Advance(-10 * time.Second)
		} else {
			clock.Advance(time.Second)
		}
		r.TickTTL()
		m, err := r.SensorMetrics("n3", "level")
		require.NoError(t, err)
		require.NotNil(t, m.DurationSeconds)
		assert.GreaterOrEqual(t, *m.DurationSeconds, last)
		last = *m.DurationSeconds
	}

	// Never-written sensors gain no duration and no value
	m, err := r.SensorMetrics("n1", "temp")
	require.NoError(t, err)
	assert.Nil(t, m.DurationSeconds)
	assert.Nil(t, m.Value)
}

func TestDefaultAndReset(t *testing.T) {
	r, clock := newTestRegistry(t)

	_, err := r.SetValues("n1", map[string]any{"temp": "21.5", "door": "true"}, false)
	require.NoError(t, err)
	clock.Advance(2 * time.Second)
	r.TickTTL()

	byNode := r.DefaultValues()
	assert.Nil(t, byNode["n1"]["temp"].Value)
	assert.Equal(t, false, byNode["n1"]["door"].Value.Interface())
	assert.Equal(t, uint64(1), byNode["n1"]["door"].HitsTotal, "default keeps metadata")
	assert.NotNil(t, byNode["n1"]["door"].HitTimestamp)

	_, err = r.SetValues("n1", map[string]any{"temp": "21.5"}, false)
	require.NoError(t, err)

	byNode = r.ResetValues()
	temp := byNode["n1"]["temp"]
	assert.Nil(t, temp.Value)
	assert.Zero(t, temp.HitsTotal)
	assert.Nil(t, temp.HitTimestamp)
	assert.Nil(t, temp.DurationSeconds)

	// The sensor remains configured
	_, err = r.SensorMetrics("n1", "temp")
	assert.NoError(t, err)
}

func TestConfigForGateway(t *testing.T) {
	r, _ := newTestRegistry(t)

	cfg := r.ConfigForGateway("gw1")
	require.Len(t, cfg, 2)
	assert.Equal(t, "n1", cfg[0].Node)
	assert.Equal(t, "n2", cfg[1].Node)

	sensors := cfg[0].Sensors
	require.Len(t, sensors, 3)
	assert.Equal(t, []string{"count", "door", "temp"},
		[]string{sensors[0].Sensor, sensors[1].Sensor, sensors[2].Sensor})
	assert.Equal(t, types.KindInt, sensors[0].Type)
	assert.Equal(t, 2, sensors[0].TTL)
	require.NotNil(t, sensors[0].Default)
	assert.Equal(t, int64(0), sensors[0].Default.Interface())
	assert.Nil(t, sensors[2].Default)

	assert.Empty(t, r.ConfigForGateway("gw-unknown"))
	assert.NotNil(t, r.ConfigForGateway("gw-unknown"))
}

func TestReload(t *testing.T) {
	clock := newFakeClock()
	doc := testSensors
	var mu sync.Mutex
	src := config.SourceFunc(func() (*config.SensorsConfig, error) {
		mu.Lock()
		defer mu.Unlock()
		cfg, err := config.ParseSensors([]byte(doc))
		if err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	})

	r, err := New(src, WithClock(clock.Now))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.Generation())
	assert.Equal(t, []string{"gw1", "gw2"}, r.Gateways())

	_, err = r.SetValues("n1", map[string]any{"temp": "1"}, false)
	require.NoError(t, err)

	// A broken file leaves the current generation in service
	mu.Lock()
	doc = "gw1: {n1: {temp: {ttl: -3}}}"
	mu.Unlock()
	_, err = r.Reload()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Equal(t, uint64(1), r.Generation())
	assert.Equal(t, 1.0, valueOf(t, r, "n1", "temp").Interface())

	mu.Lock()
	doc = "gw3: {n7: {temp: {type: float}}}"
	mu.Unlock()
	res, err := r.Reload()
	require.NoError(t, err)
	assert.Equal(t, ReloadResult{Generation: 2, Gateways: 1, Nodes: 1, Sensors: 1}, res)

	_, err = r.SensorMetrics("n1", "temp")
	assert.True(t, errors.IsNotFound(err), "sensors absent from the new generation are gone")
	assert.Nil(t, valueOf(t, r, "n7", "temp"))

	gw, ok := r.NodeGateway("n7")
	assert.True(t, ok)
	assert.Equal(t, "gw3", gw)
}

func TestConcurrentWritersDisjointSensors(t *testing.T) {
	var doc string
	doc = "gw1:\n"
	const writers = 16
	for i := 0; i < writers; i++ {
		doc += "  node" + string(rune('a'+i)) + ":\n    hits: {type: int}\n"
	}
	r, err := New(yamlSource(t, doc))
	require.NoError(t, err)

	const perWriter = 200
	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Concurrent ticks and scrapes
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.TickTTL()
				_ = r.Snapshot().ByNode(false)
			}
		}
	}()

	var writersWG sync.WaitGroup
	for i := 0; i < writers; i++ {
		writersWG.Add(1)
		go func(node string) {
			defer writersWG.Done()
			for j := 0; j < perWriter; j++ {
				_, err := r.SetValues(node, map[string]any{"hits": 1}, true)
				assert.NoError(t, err)
			}
		}("node" + string(rune('a'+i)))
	}
	writersWG.Wait()
	close(stop)
	wg.Wait()

	for i := 0; i < writers; i++ {
		node := "node" + string(rune('a'+i))
		assert.Equal(t, int64(perWriter), valueOf(t, r, node, "hits").Interface())
	}
}
