package natsclient

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/gateway"
	"github.com/c360/switchboard/sensors"
	"github.com/c360/switchboard/types"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, message{subject, data})
	return nil
}

func TestChangeFeed_NodeChange(t *testing.T) {
	pub := &fakePublisher{}
	feed := NewChangeFeed(pub, "", nil)

	v := types.FloatValue(21.5)
	change := gateway.Change{
		Kind:    gateway.ChangeSet,
		EventID: "api-00002a",
		Channel: gateway.ChannelAPI,
		Gateway: "gw1",
		Node:    "n1",
		Sensors: map[string]sensors.SensorMetrics{"temp": {Value: &v, HitsTotal: 1}},
		Time:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, feed.NotifyChange(context.Background(), change))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "switchboard.changes.n1", pub.msgs[0].subject)

	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	assert.Equal(t, "set", got["kind"])
	assert.Equal(t, "api-00002a", got["event_id"])
	assert.Equal(t, "gw1", got["gw"])
	temp := got["sensors"].(map[string]any)["temp"].(map[string]any)
	assert.Equal(t, 21.5, temp["value"])
	assert.Equal(t, 1.0, temp["hits_total"])
}

func TestChangeFeed_Subjects(t *testing.T) {
	feed := NewChangeFeed(&fakePublisher{}, "site.a.", nil)

	tests := []struct {
		name   string
		change gateway.Change
		want   string
	}{
		{"node", gateway.Change{Kind: gateway.ChangeInc, Node: "n1"}, "site.a.n1"},
		{"reload", gateway.Change{Kind: gateway.ChangeReload}, "site.a._reload"},
		{"reset", gateway.Change{Kind: gateway.ChangeReset}, "site.a._reset"},
		{"dotted node", gateway.Change{Kind: gateway.ChangeSet, Node: "room.1"}, "site.a.room_1"},
		{"wildcards", gateway.Change{Kind: gateway.ChangeSet, Node: "a*b>c d"}, "site.a.a_b_c_d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, feed.Subject(tt.change))
		})
	}
}

func TestChangeFeed_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.WrapTransient(errors.ErrNotConnected, "Client", "Publish", "publish")}
	feed := NewChangeFeed(pub, "x", nil)

	err := feed.NotifyChange(context.Background(), gateway.Change{Kind: gateway.ChangeDefault})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestChangeFeed_OverClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	feed := NewChangeFeed(client, "", nil)

	err = feed.NotifyChange(context.Background(), gateway.Change{Kind: gateway.ChangeSet, Node: "n1"})
	assert.ErrorIs(t, err, errors.ErrNotConnected)
}
