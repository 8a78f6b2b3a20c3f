// Package gateway holds the pieces shared by the gateway's protocol adapters.
//
// The HTTP control adapter (gateway/http) and the realtime adapter
// (gateway/realtime) both translate external requests into registry calls.
// They mount their routes through RouteRegistrar and report accepted writes
// through ChangeNotifier:
//
//	fanout := gateway.NewFanout(logger, metrics)
//	fanout.Add("events", eventsNamespace)
//	fanout.Add("nats", changeFeed)
//
// A Change is node-scoped for set and inc, and registry-wide for default,
// reset and reload. Change.Subject gives the routing key used by the NATS
// change feed.
package gateway
