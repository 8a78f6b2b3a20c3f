// Package eventid generates correlation identifiers for log lines.
//
// Every value update that enters the gateway gets an event ID: a short hex
// counter with a prefix naming the ingest path ("api-", "rt-", "mqtt-").
// HTTP requests additionally carry a request ID, taken from the X-Request-ID
// header when the client sent one.
package eventid

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// Ingest path prefixes
const (
	PrefixAPI      = "api-"
	PrefixRealtime = "rt-"
	PrefixMQTT     = "mqtt-"
	PrefixSignal   = "sig-"
)

type ctxKey int

const (
	eventKey ctxKey = iota
	requestKey
)

// Generator hands out monotonically increasing event IDs. The zero value is ready to use.
type Generator struct {
	counter atomic.Uint64
}

// Next returns the next event ID with the given prefix, e.g. "api-00002a".
func (g *Generator) Next(prefix string) string {
	return fmt.Sprintf("%s%06x", prefix, g.counter.Add(1))
}

// NewRequestID returns a fresh random request ID.
func NewRequestID() string {
	return uuid.NewString()
}

// WithEvent stores an event ID in ctx.
func WithEvent(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventKey, id)
}

// Event returns the event ID stored in ctx, or "".
func Event(ctx context.Context) string {
	id, _ := ctx.Value(eventKey).(string)
	return id
}

// WithRequest stores a request ID in ctx.
func WithRequest(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey, id)
}

// Request returns the request ID stored in ctx, or "".
func Request(ctx context.Context) string {
	id, _ := ctx.Value(requestKey).(string)
	return id
}

// Logger decorates logger with whatever correlation IDs ctx carries.
func Logger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if rid := Request(ctx); rid != "" {
		logger = logger.With("request_id", rid)
	}
	if eid := Event(ctx); eid != "" {
		logger = logger.With("event_id", eid)
	}
	return logger
}
