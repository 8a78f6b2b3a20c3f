package realtime

import (
	"context"
	"encoding/json"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/gateway"
	"github.com/c360/switchboard/sensors"
)

// EventsNamespace is the broadcast namespace watched by dashboards. Any new
// connection triggers a broadcast of all metrics by node to every client.
type EventsNamespace struct {
	*Namespace
	registry *sensors.Registry
}

var _ gateway.ChangeNotifier = (*EventsNamespace)(nil)

// NewEventsNamespace wires the broadcast handlers over registry.
func NewEventsNamespace(registry *sensors.Registry, opts ...Option) *EventsNamespace {
	e := &EventsNamespace{
		Namespace: NewNamespace(NamespaceEvents, opts...),
		registry:  registry,
	}
	e.OnConnect(func(*Conn) {
		if _, err := e.Broadcast(EventBroadcast, e.registry.Snapshot().ByNode(false)); err != nil {
			e.logger.Warn("Connect broadcast failed", "error", err)
		}
	})
	e.On(EventPing, func(c *Conn, _ json.RawMessage) {
		_ = c.Emit(EventPong, nil)
	})
	return e
}

// NotifyChange broadcasts a change in the same node -> sensor shape as the
// connect broadcast: node-scoped changes carry only the written sensors,
// registry-wide changes the full state.
func (e *EventsNamespace) NotifyChange(_ context.Context, change gateway.Change) error {
	var payload map[string]map[string]sensors.SensorMetrics
	switch {
	case change.Node != "":
		payload = map[string]map[string]sensors.SensorMetrics{change.Node: change.Sensors}
	case change.Nodes != nil:
		payload = change.Nodes
	default:
		payload = e.registry.Snapshot().ByNode(false)
	}

	if _, err := e.Broadcast(EventBroadcast, payload); err != nil {
		return errors.Wrap(err, "EventsNamespace", "NotifyChange", "broadcast "+string(change.Kind))
	}
	return nil
}
