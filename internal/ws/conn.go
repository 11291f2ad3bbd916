package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 64
)

// Event is the wire envelope for every server/client exchange.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn wraps one websocket connection behind an opaque comparable handle.
// All writes funnel through the send channel so that a single writePump owns
// the socket; concurrent emitters never interleave partial frames.
type Conn struct {
	id   string
	sock *websocket.Conn
	send chan []byte
	done chan struct{}
}

// NewConn assigns a fresh handle to an accepted websocket and starts its
// write pump.
func NewConn(sock *websocket.Conn) *Conn {
	c := &Conn{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// ID returns the handle assigned at accept time.
func (c *Conn) ID() string { return c.id }

// Send queues an event for delivery. Delivery is best-effort: a full buffer
// or a closed connection drops the event rather than blocking the caller.
func (c *Conn) Send(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("[ws] failed to marshal %s event: %v", event, err)
		return
	}
	frame, err := json.Marshal(Event{Event: event, Data: payload})
	if err != nil {
		log.Printf("[ws] failed to marshal %s envelope: %v", event, err)
		return
	}

	select {
	case <-c.done:
	case c.send <- frame:
	default:
		log.Printf("[ws] send buffer full, dropping %s event for conn=%s", event, c.id)
	}
}

// Close tears the socket down and stops the write pump.
func (c *Conn) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.sock.Close()
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("[ws] write error conn=%s: %v", c.id, err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
