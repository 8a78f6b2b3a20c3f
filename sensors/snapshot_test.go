package sensors

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Views(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.SetValues("n1", map[string]any{"temp": "20"}, false)
	require.NoError(t, err)
	_, err = r.SetValues("n3", map[string]any{"level": "0.5"}, false)
	require.NoError(t, err)

	snap := r.Snapshot()
	assert.Equal(t, uint64(1), snap.Generation)
	require.Len(t, snap.Sensors, 5)

	order := make([]string, 0, len(snap.Sensors))
	for _, st := range snap.Sensors {
		order = append(order, st.Node+"/"+st.Sensor)
	}
	assert.Equal(t, []string{"n1/count", "n1/door", "n1/temp", "n2/label", "n3/level"}, order)

	all := snap.Metrics(false)
	assert.Len(t, all, 5)

	present := snap.Metrics(true)
	// temp, level, plus count and door which have defaults
	assert.Len(t, present, 4)
	for _, m := range present {
		assert.NotNil(t, m.Value)
	}

	byGw := snap.ByGateway(false)
	assert.Len(t, byGw, 2)
	assert.Contains(t, byGw["gw1"], "n2")
	assert.Equal(t, 0.5, byGw["gw2"]["n3"]["level"].Value.Interface())

	byNode := snap.ByNode(true)
	assert.NotContains(t, byNode, "n2", "label has no value")

	bySensor := snap.BySensor(false)
	assert.Equal(t, 20.0, bySensor["temp"]["n1"].Value.Interface())
}

func TestSnapshot_IsImmutableCopy(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.SetValues("n1", map[string]any{"temp": "1"}, false)
	require.NoError(t, err)

	snap := r.Snapshot()
	_, err = r.SetValues("n1", map[string]any{"temp": "2"}, false)
	require.NoError(t, err)

	assert.Equal(t, 1.0, snap.ByNode(false)["n1"]["temp"].Value.Interface())
	assert.Equal(t, 2.0, r.Snapshot().ByNode(false)["n1"]["temp"].Value.Interface())
}

func TestSensorMetrics_JSON(t *testing.T) {
	r, _ := newTestRegistry(t)

	m, err := r.SensorMetrics("n1", "temp")
	require.NoError(t, err)
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":null,"hits_total":0,"hit_timestamp":null,"duration_seconds":null}`, string(data))

	_, err = r.SetValues("n1", map[string]any{"door": "1"}, false)
	require.NoError(t, err)
	dump := r.Dump()
	data, err = json.Marshal(dump.Gateways["gw1"]["n1"]["door"])
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, true, decoded["value"])
	assert.Equal(t, false, decoded["default"])
	assert.Equal(t, "bool", decoded["type"])
	assert.Equal(t, float64(1), decoded["hits_total"])
	assert.Equal(t, "gw1", decoded["gw"])
}
