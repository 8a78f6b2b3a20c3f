package dispatcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/switchboard/config"
	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/gateway"
	"github.com/c360/switchboard/gateway/realtime"
)

const sensorsV1 = `
gw1:
  n1:
    temp: {type: float}
    count: {type: int, ttl: 2, default: 0}
`

const sensorsV2 = `
gw1:
  n1:
    temp: {type: float}
  n2:
    door: {type: bool, default: false}
`

// docSource serves whichever document is current.
type docSource struct {
	doc atomic.Value
}

func newSource(doc string) *docSource {
	s := &docSource{}
	s.doc.Store(doc)
	return s
}

func (s *docSource) set(doc string) { s.doc.Store(doc) }

func (s *docSource) Load() (*config.SensorsConfig, error) {
	cfg, err := config.ParseSensors([]byte(s.doc.Load().(string)))
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func testConfig(src config.Source) Config {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.Sensors = src
	cfg.TickInterval = 20 * time.Millisecond
	return cfg
}

func newDispatcher(t *testing.T, cfg Config) *Dispatcher {
	t.Helper()
	d, err := New(cfg, nil)
	require.NoError(t, err)
	return d
}

func do(t *testing.T, method, target string, form url.Values) (int, string) {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestNew_Errors(t *testing.T) {
	t.Run("missing source", func(t *testing.T) {
		_, err := New(Config{}, nil)
		require.Error(t, err)
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("bad sensor configuration", func(t *testing.T) {
		_, err := New(testConfig(newSource("gw1: {n1: {temp: {type: complex}}}")), nil)
		require.Error(t, err)
		assert.True(t, errors.IsFatal(err))
		assert.True(t, errors.IsConfig(err))
	})

	t.Run("bad address", func(t *testing.T) {
		cfg := testConfig(newSource(sensorsV1))
		cfg.Address = "no-port"
		_, err := New(cfg, nil)
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("bad tick interval", func(t *testing.T) {
		cfg := testConfig(newSource(sensorsV1))
		cfg.TickInterval = -time.Second
		_, err := New(cfg, nil)
		assert.Error(t, err)
	})
}

func TestHandler_ServesAllSurfaces(t *testing.T) {
	d := newDispatcher(t, testConfig(newSource(sensorsV1)))
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	status, _ := do(t, http.MethodPut, srv.URL+"/api/metrics/n1", url.Values{"temp": {"21.5"}})
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, http.MethodGet, srv.URL+"/api/metrics/n1/temp", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"value":21.5`)

	status, body = do(t, http.MethodGet, srv.URL+PathMetrics, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `switchboard_sensor_value{gw="gw1",node="n1",sensor="temp"} 21.5`)
	assert.Contains(t, body, `switchboard_sensor_hits_total{gw="gw1",node="n1",sensor="temp"} 1`)
	assert.NotContains(t, body, `sensor="count"} `, "sensors without a value are not exported")
	assert.Contains(t, body, "switchboard_http_requests_total")

	// The ticker is not running yet
	status, body = do(t, http.MethodGet, srv.URL+PathHealth, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, `"ticker"`)
}

func TestReload(t *testing.T) {
	src := newSource(sensorsV1)
	cfg := testConfig(src)
	cfg.PushConfigOnReload = true
	d := newDispatcher(t, cfg)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+realtime.PathSensors, nil)
	require.NoError(t, err)
	defer ws.Close()
	read := func() realtime.Envelope {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var env realtime.Envelope
		require.NoError(t, ws.ReadJSON(&env))
		return env
	}
	read() // connected
	require.NoError(t, ws.WriteJSON(map[string]any{"event": "join", "data": map[string]string{"room": "gw1"}}))
	read()
	read()

	src.set(sensorsV2)
	status, body := do(t, http.MethodPut, srv.URL+"/api/state/reload", url.Values{})
	require.Equal(t, http.StatusOK, status, body)
	assert.JSONEq(t, `{"generation":2,"gateways":1,"nodes":2,"sensors":2}`, body)

	env := read()
	assert.Equal(t, realtime.EventConfigResponse, env.Event)
	assert.Contains(t, string(env.Data), `"n2"`)

	// Broken source keeps generation 2
	src.set("gw1: [")
	status, _ = do(t, http.MethodPut, srv.URL+"/api/state/reload", url.Values{})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, uint64(2), d.Registry().Generation())

	core := d.Metrics().CoreMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(core.Reloads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.Reloads.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(core.Generation))
}

func TestReloadFrom_Signal(t *testing.T) {
	d := newDispatcher(t, testConfig(newSource(sensorsV2)))

	var got []gateway.Change
	d.fanout.Add("test", gateway.NotifierFunc(func(_ context.Context, c gateway.Change) error {
		got = append(got, c)
		return nil
	}))

	res, err := d.ReloadFrom(context.Background(), gateway.ChannelSignal)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Generation)
	require.Len(t, got, 1)
	assert.Equal(t, gateway.ChangeReload, got[0].Kind)
	assert.Equal(t, gateway.ChannelSignal, got[0].Channel)
}

func TestBroadcastOnChange(t *testing.T) {
	cfg := testConfig(newSource(sensorsV1))
	cfg.BroadcastOnChange = true
	d := newDispatcher(t, cfg)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+realtime.PathEvents, nil)
	require.NoError(t, err)
	defer ws.Close()
	read := func() map[string]map[string]map[string]any {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var env realtime.Envelope
		require.NoError(t, ws.ReadJSON(&env))
		require.Equal(t, realtime.EventBroadcast, env.Event)
		var payload map[string]map[string]map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		return payload
	}
	read() // connect broadcast

	status, _ := do(t, http.MethodPut, srv.URL+"/api/metrics/inc/n1", url.Values{"count": {"4"}})
	require.Equal(t, http.StatusOK, status)

	payload := read()
	assert.Equal(t, 4.0, payload["n1"]["count"]["value"])
	assert.NotContains(t, payload["n1"], "temp", "only written sensors are pushed")
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Sensors: newSource(sensorsV1)}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultAddress, cfg.Address)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, int64(1024*1024), cfg.Gateway.MaxRequestSize)

	cfg.RealtimeSendQueue = -1
	err := cfg.Validate()
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
