// Package dispatcher is the composition root of the switchboard gateway.
//
// New loads the sensor configuration into a registry and wires everything
// around it: the control API, the two websocket namespaces, the Prometheus
// exporter, the TTL ticker, the health endpoint and the optional NATS change
// feed and MQTT bridge. All HTTP surfaces share one chi router and one
// listener.
//
// Start brings components up in dependency order (ticker, brokers, listener)
// and fails fast: if any step fails, the steps already taken are undone and
// the error is returned. Stop shuts down in reverse order within a single
// timeout.
//
// Reloads swap the registry generation in place. Websocket connections and
// their rooms survive a reload; when PushConfigOnReload is set every joined
// room receives the new configuration.
package dispatcher
