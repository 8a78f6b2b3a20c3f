package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/switchboard/errors"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	defaultSendQueue = 64
)

// Envelope is the wire format of every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Envelope", "encode", "marshal "+event)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Conn is one websocket client of a namespace.
type Conn struct {
	id     string
	remote string
	ws     *websocket.Conn
	ns     *Namespace

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newConn(ns *Namespace, ws *websocket.Conn, remote string) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		remote: remote,
		ws:     ws,
		ns:     ns,
		send:   make(chan []byte, ns.opts.sendQueue),
	}
}

// ID returns the connection id.
func (c *Conn) ID() string {
	return c.id
}

// Emit sends an event to this connection only.
func (c *Conn) Emit(event string, data any) error {
	msg, err := encode(event, data)
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

// enqueue queues a frame. A peer that lets its queue fill up is dropped.
func (c *Conn) enqueue(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.WrapTransient(errors.ErrNotConnected, "Conn", "Emit", "queue frame for "+c.id)
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.closeLocked()
		return errors.WrapTransient(errors.ErrConnectionLost, "Conn", "Emit", "queue full, dropped "+c.id)
	}
}

// Close ends the connection; the write pump sends a close frame and exits.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Conn) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads frames until the peer goes away and dispatches them to the
// namespace handlers. Handlers run on this goroutine, so events of one
// connection are handled in arrival order.
func (c *Conn) readPump() {
	defer func() {
		c.ns.unregister(c)
		c.Close()
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.ns.logger.Debug("Realtime read error", "conn", c.id, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.ns.logger.Debug("Ignoring malformed frame", "conn", c.id, "size", len(data))
			c.ns.metrics.RecordRealtimeEvent(c.ns.name, "malformed")
			continue
		}
		c.ns.dispatch(c, env)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
