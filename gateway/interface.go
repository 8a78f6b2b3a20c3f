package gateway

import (
	"context"

	"github.com/go-chi/chi/v5"
)

// RouteRegistrar is implemented by adapters that expose HTTP routes on the
// dispatcher's shared router.
//
// Example registration:
//
//	func (g *Gateway) RegisterRoutes(r chi.Router) {
//	    r.Get("/metrics/{node}", g.handleNodeMetrics)
//	}
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// ChangeNotifier is told about every state change the registry accepted from
// an ingest path or a control operation. Implementations must not block the
// caller for long; the realtime events namespace and the NATS change feed are
// the two in-tree notifiers.
type ChangeNotifier interface {
	NotifyChange(ctx context.Context, change Change) error
}

// NotifierFunc adapts a plain function to ChangeNotifier.
type NotifierFunc func(ctx context.Context, change Change) error

// NotifyChange calls f.
func (f NotifierFunc) NotifyChange(ctx context.Context, change Change) error {
	return f(ctx, change)
}
