// Package health tracks the health of gateway components and serves the
// aggregate on the liveness endpoint.
//
// # Health States
//
//   - healthy: operating normally
//   - degraded: serving with reduced functionality (a broker feed reconnecting,
//     the last reload rejected)
//   - unhealthy: not serving (the TTL ticker stalled, the listener failed)
//
// # Push and Pull
//
// Components either push their status:
//
//	monitor := health.NewMonitor()
//	monitor.UpdateDegraded("mqtt", "broker unreachable, retrying")
//
// or register a check that is evaluated on every read:
//
//	monitor.Register("ttl", ticker.Health)
//
// AggregateHealth folds all statuses into one: any unhealthy component makes
// the system unhealthy, otherwise any degraded component makes it degraded.
//
// # Endpoint
//
// Monitor.Handler serves the aggregate as JSON. It answers 200 while the
// gateway is serving (healthy or degraded) and 503 when it is unhealthy.
// Error messages passed through FromError are sanitized so broker URLs,
// addresses, file paths and credentials do not leak.
package health
