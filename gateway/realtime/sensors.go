package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/gateway"
	"github.com/c360/switchboard/pkg/eventid"
	"github.com/c360/switchboard/sensors"
)

// Namespace names and event names of the wire protocol
const (
	NamespaceSensors = "sensors"
	NamespaceEvents  = "events"

	EventConnect        = "connect"
	EventJoin           = "join"
	EventStatusResponse = "status_response"
	EventConfigResponse = "config_response"
	EventSensorResponse = "sensor_response"
	EventPing           = "ping"
	EventPong           = "pong"
	EventBroadcast      = "event"
)

// SensorsNamespace is the ingest and control namespace used by sensor gateways:
// they join the room of their gateway id, receive their node configuration and
// report sensor values.
type SensorsNamespace struct {
	*Namespace
	registry *sensors.Registry
	notifier gateway.ChangeNotifier
	events   *eventid.Generator
}

// NewSensorsNamespace wires the ingest handlers over registry. notifier may be nil.
func NewSensorsNamespace(registry *sensors.Registry, notifier gateway.ChangeNotifier,
	events *eventid.Generator, opts ...Option) *SensorsNamespace {
	if events == nil {
		events = &eventid.Generator{}
	}
	s := &SensorsNamespace{
		Namespace: NewNamespace(NamespaceSensors, opts...),
		registry:  registry,
		notifier:  notifier,
		events:    events,
	}
	s.OnConnect(s.handleConnect)
	s.On(EventJoin, s.handleJoin)
	s.On(EventSensorResponse, s.handleSensorResponse)
	s.On(EventPing, func(c *Conn, _ json.RawMessage) {
		_ = c.Emit(EventPong, nil)
	})
	return s
}

func (s *SensorsNamespace) handleConnect(c *Conn) {
	_ = c.Emit(EventStatusResponse, map[string]string{"status": "connected"})
}

type joinRequest struct {
	Room string `json:"room"`
}

func (s *SensorsNamespace) handleJoin(c *Conn, data json.RawMessage) {
	var req joinRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Room == "" {
		s.logger.Warn("Ignoring malformed join", "conn", c.id)
		return
	}

	s.rooms.Join(c, req.Room)
	s.logger.Info("Realtime client joined", "conn", c.id, "room", req.Room)

	_ = c.Emit(EventStatusResponse, map[string][]string{"joined in": s.rooms.Of(c)})
	_ = c.Emit(EventConfigResponse, map[string][]sensors.NodeConfig{
		req.Room: s.registry.ConfigForGateway(req.Room),
	})
}

// handleSensorResponse applies {node: {sensor: value}} reports. Unknown nodes
// or sensors are skipped silently; other nodes of the same report still apply.
func (s *SensorsNamespace) handleSensorResponse(c *Conn, data json.RawMessage) {
	report, err := decodeReport(data)
	if err != nil {
		s.metrics.RecordIngestSkipped(gateway.ChannelRealtime, "malformed")
		s.logger.Warn("Ignoring malformed sensor report", "conn", c.id, "error", err)
		return
	}

	nodes := make([]string, 0, len(report))
	for node := range report {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		eventID := s.events.Next(eventid.PrefixRealtime)
		ctx := eventid.WithEvent(context.Background(), eventID)
		log := eventid.Logger(ctx, s.logger)
		log.Info("Realtime in", "conn", c.id, "node", node, "fields", report[node])

		upd, err := s.registry.SetValues(node, report[node], false)
		switch {
		case errors.IsNotFound(err):
			s.metrics.RecordIngestSkipped(gateway.ChannelRealtime, "not_found")
			log.Debug("Skipping unknown node or sensor", "node", node)
			continue
		case err != nil:
			s.metrics.RecordIngestSkipped(gateway.ChannelRealtime, "invalid")
			log.Warn("Sensor report rejected", "node", node, "error", err)
			continue
		}
		if len(upd.Rejected) > 0 {
			log.Warn("Some fields rejected", "node", node, "rejected", upd.Rejected)
		}

		s.metrics.RecordIngestUpdate(gateway.ChannelRealtime)
		if s.notifier != nil {
			_ = s.notifier.NotifyChange(ctx, gateway.ChangeFromUpdate(upd, false, gateway.ChannelRealtime, eventID))
		}
	}
}

func decodeReport(data json.RawMessage) (map[string]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var report map[string]map[string]any
	if err := dec.Decode(&report); err != nil {
		return nil, errors.WrapInvalid(err, "SensorsNamespace", "decodeReport", "decode sensor report")
	}
	return report, nil
}

// RefreshRooms sends every room its current gateway configuration, e.g. after
// a reload changed the node layout.
func (s *SensorsNamespace) RefreshRooms() int {
	sent := 0
	for _, room := range s.rooms.List() {
		n, err := s.EmitRoom(room, EventConfigResponse, map[string][]sensors.NodeConfig{
			room: s.registry.ConfigForGateway(room),
		})
		if err != nil {
			s.logger.Warn("Config refresh failed", "room", room, "error", err)
			continue
		}
		sent += n
	}
	s.logger.Debug("Config refresh sent", "connections", sent)
	return sent
}
