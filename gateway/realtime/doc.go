// Package realtime implements the websocket side of the gateway.
//
// Frames are JSON text messages of the form
//
//	{"event": "<name>", "data": <payload>}
//
// Two namespaces are served:
//
//   - /socket/sensors: sensor gateways connect, get
//     status_response {"status": "connected"}, send join {"room": "<gw>"} and
//     receive status_response {"joined in": [...]} followed by
//     config_response {"<gw>": [node configs]}. They then report values with
//     sensor_response {"<node>": {"<sensor>": value}}. Reports for unknown
//     nodes or sensors are dropped without a reply.
//   - /socket/events: dashboards connect and every client of the namespace
//     receives event {"<node>": {"<sensor>": metrics}}. EventsNamespace also
//     implements gateway.ChangeNotifier for change-driven pushes.
//
// Both namespaces answer ping with pong. Each connection has a bounded send
// queue; a client that does not drain it is disconnected. Room membership is
// kept in both directions so a disconnect leaves every room at once.
package realtime
