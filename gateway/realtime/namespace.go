package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/metric"
)

// Handler handles one inbound event. Handlers of one connection run sequentially.
type Handler func(c *Conn, data json.RawMessage)

// Option is a functional option shared by the realtime namespaces
type Option func(*options)

type options struct {
	logger    *slog.Logger
	metrics   *metric.Metrics
	origins   []string
	sendQueue int
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records connected clients and received events in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.metrics = registry.CoreMetrics()
	}
}

// WithOrigins lists the allowed Origin headers; "*" allows any. Without it
// only same-host origins are accepted.
func WithOrigins(origins []string) Option {
	return func(o *options) {
		o.origins = origins
	}
}

// WithSendQueue sets the per-connection outbound queue length
func WithSendQueue(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sendQueue = n
		}
	}
}

func buildOptions(name string, opts []Option) options {
	o := options{
		logger:    slog.Default().With("component", "realtime"),
		sendQueue: defaultSendQueue,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("namespace", name)
	return o
}

// Namespace is one websocket endpoint: its connections, rooms and event handlers.
type Namespace struct {
	name     string
	opts     options
	upgrader websocket.Upgrader
	rooms    *Rooms
	logger   *slog.Logger
	metrics  *metric.Metrics

	mu        sync.RWMutex
	conns     map[*Conn]struct{}
	handlers  map[string]Handler
	onConnect func(*Conn)
	closed    bool

	wg sync.WaitGroup
}

// NewNamespace creates a namespace with no handlers.
func NewNamespace(name string, opts ...Option) *Namespace {
	o := buildOptions(name, opts)
	n := &Namespace{
		name:     name,
		opts:     o,
		rooms:    NewRooms(),
		logger:   o.logger,
		metrics:  o.metrics,
		conns:    make(map[*Conn]struct{}),
		handlers: make(map[string]Handler),
	}
	n.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(o.origins),
	}
	return n
}

func checkOrigin(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return nil // gorilla default: same host only
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}

// Name returns the namespace name.
func (n *Namespace) Name() string {
	return n.name
}

// Rooms returns the room index of the namespace.
func (n *Namespace) Rooms() *Rooms {
	return n.rooms
}

// On registers the handler for event, replacing any earlier one.
func (n *Namespace) On(event string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[event] = h
}

// OnConnect registers the hook run for each new connection, before its first read.
func (n *Namespace) OnConnect(fn func(*Conn)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onConnect = fn
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (n *Namespace) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.logger.Debug("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(n, ws, r.RemoteAddr)
	onConnect, ok := n.register(c)
	if !ok {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}

	go func() {
		defer n.wg.Done()
		c.writePump()
	}()
	if onConnect != nil {
		onConnect(c)
	}

	defer n.wg.Done()
	c.readPump()
}

// register adds c unless the namespace is closed and returns the connect hook.
func (n *Namespace) register(c *Conn) (func(*Conn), bool) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, false
	}
	n.conns[c] = struct{}{}
	n.wg.Add(2)
	count := len(n.conns)
	onConnect := n.onConnect
	n.mu.Unlock()

	n.metrics.RecordRealtimeClients(n.name, count)
	n.logger.Info("Realtime client connected", "conn", c.id, "remote", c.remote, "clients", count)
	return onConnect, true
}

func (n *Namespace) unregister(c *Conn) {
	n.mu.Lock()
	delete(n.conns, c)
	count := len(n.conns)
	n.mu.Unlock()

	left := n.rooms.LeaveAll(c)
	n.metrics.RecordRealtimeClients(n.name, count)
	n.logger.Info("Realtime client disconnected", "conn", c.id, "rooms", left, "clients", count)
}

func (n *Namespace) dispatch(c *Conn, env Envelope) {
	n.mu.RLock()
	h, ok := n.handlers[env.Event]
	n.mu.RUnlock()

	if !ok {
		n.metrics.RecordRealtimeEvent(n.name, "unknown")
		n.logger.Debug("No handler for event", "conn", c.id, "event", env.Event)
		return
	}
	n.metrics.RecordRealtimeEvent(n.name, env.Event)
	h(c, env.Data)
}

// Len returns the number of open connections.
func (n *Namespace) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.conns)
}

func (n *Namespace) snapshot() []*Conn {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]*Conn, 0, len(n.conns))
	for c := range n.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast sends an event to every connection of the namespace and returns
// how many connections it was queued for.
func (n *Namespace) Broadcast(event string, data any) (int, error) {
	msg, err := encode(event, data)
	if err != nil {
		return 0, err
	}
	return n.deliver(n.snapshot(), msg), nil
}

// EmitRoom sends an event to every member of room.
func (n *Namespace) EmitRoom(room, event string, data any) (int, error) {
	msg, err := encode(event, data)
	if err != nil {
		return 0, err
	}
	return n.deliver(n.rooms.Members(room), msg), nil
}

func (n *Namespace) deliver(conns []*Conn, msg []byte) int {
	sent := 0
	for _, c := range conns {
		if err := c.enqueue(msg); err != nil {
			if errors.Is(err, errors.ErrConnectionLost) {
				n.logger.Warn("Dropped slow realtime client", "conn", c.id)
			}
			continue
		}
		sent++
	}
	return sent
}

// Close disconnects every client and waits up to timeout for their pumps to exit.
// New connections are refused afterwards.
func (n *Namespace) Close(timeout time.Duration) {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	for _, c := range n.snapshot() {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		n.logger.Warn("Realtime namespace close timed out", "timeout", timeout)
	}
}
