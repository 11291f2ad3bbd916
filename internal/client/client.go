// Package client maintains one persistent connection to the chat gateway on
// behalf of a logical user: it authenticates the handshake, re-announces the
// user after every (re)connect, dedupes completion events and drives bounded
// reconnection.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nimbuschat/backend/internal/model/chat"
	wsconn "github.com/nimbuschat/backend/internal/ws"
)

// ErrRetriesExhausted surfaces when the reconnect cap is reached.
var ErrRetriesExhausted = errors.New("failed to connect after maximum attempts")

// State describes the connection for UI chips.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultMaxRetries       = 5
	defaultRetryBaseDelay   = time.Second
	defaultRejoinInterval   = 30 * time.Second
)

// Handlers are the application callbacks. Nil callbacks are skipped.
type Handlers struct {
	// OnChunk receives each non-terminal piece of a streamed reply.
	OnChunk func(streamID, text string)
	// OnComplete receives the assembled reply exactly once per stream id,
	// even if the terminal event is delivered more than once.
	OnComplete func(streamID, fullText string)
	// OnError receives per-event error messages from the server and
	// terminal connection errors.
	OnError func(message string)
	// OnState observes connection-state transitions.
	OnState func(state State)
}

// Config parameterizes the client.
type Config struct {
	// URL of the websocket endpoint, e.g. ws://localhost:3001/ws/chat.
	URL string
	// Token is attached to the handshake; empty connects in debug mode.
	Token string
	// UserID is announced via join after every connect.
	UserID string

	HandshakeTimeout time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RejoinInterval   time.Duration
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.RejoinInterval <= 0 {
		c.RejoinInterval = defaultRejoinInterval
	}
}

// Client is the connection lifecycle manager. All exported methods are safe
// for concurrent use.
type Client struct {
	cfg      Config
	handlers Handlers

	mu         sync.Mutex
	sock       *websocket.Conn
	writeMu    sync.Mutex
	state      State
	attempts   int
	closed     bool
	authFailed bool
	retryTimer *time.Timer

	// per-connection dedup and reassembly state, reset on every disconnect
	applied map[string]struct{}
	partial map[string]*strings.Builder
}

// New creates a client; call Connect to establish the connection.
func New(cfg Config, handlers Handlers) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:      cfg,
		handlers: handlers,
		state:    StateDisconnected,
		applied:  make(map[string]struct{}),
		partial:  make(map[string]*strings.Builder),
	}
}

// Connect dials the gateway and announces the user. On failure the retry
// path engages unless the cap is already exhausted.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed || c.authFailed {
		c.mu.Unlock()
		return errors.New("client is closed")
	}
	if c.sock != nil {
		c.mu.Unlock()
		return nil
	}
	if c.attempts >= c.cfg.MaxRetries {
		c.mu.Unlock()
		c.emitError(ErrRetriesExhausted.Error())
		return ErrRetriesExhausted
	}
	c.attempts++
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	sock, err := c.dial()
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		c.scheduleReconnect()
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.sock = sock
	c.attempts = 0
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	// idempotent join, re-announced on every connect
	c.sendJoin()

	go c.readLoop(sock)
	go c.rejoinLoop(sock)
	return nil
}

// SendMessage submits one user message over the push channel.
func (c *Client) SendMessage(text string) error {
	return c.writeEvent("message", map[string]string{"message": text})
}

// Nudge attempts an immediate reconnect, resetting any pending retry timer.
// Intended for opportunistic moments such as the UI regaining focus.
func (c *Client) Nudge() {
	c.mu.Lock()
	if c.closed || c.authFailed || c.sock != nil {
		c.mu.Unlock()
		return
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.attempts = 0
	c.mu.Unlock()

	go func() {
		if err := c.Connect(); err != nil {
			log.Printf("[client] nudge reconnect failed: %v", err)
		}
	}()
}

// Close disconnects permanently; no reconnection is attempted afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	sock := c.sock
	c.sock = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) dial() (*websocket.Conn, error) {
	target, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if c.cfg.Token != "" {
		q := target.Query()
		q.Set("token", c.cfg.Token)
		target.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	sock, _, err := dialer.Dial(target.String(), nil)
	return sock, err
}

func (c *Client) readLoop(sock *websocket.Conn) {
	for {
		var event wsconn.Event
		if err := sock.ReadJSON(&event); err != nil {
			c.handleDisconnect(sock, err)
			return
		}
		c.handleEvent(event)
	}
}

// rejoinLoop periodically re-announces the user while connected so a
// server-side directory entry that was silently dropped gets restored.
func (c *Client) rejoinLoop(sock *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.RejoinInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		current := c.sock
		c.mu.Unlock()
		if current != sock {
			return
		}
		c.sendJoin()
	}
}

func (c *Client) handleEvent(event wsconn.Event) {
	switch event.Event {
	case "connected", "joined":
		// handshake acknowledgments, nothing to apply
	case "stream-chunk":
		c.handleStreamChunk(event.Data)
	case "error":
		c.handleServerError(event.Data)
	default:
		log.Printf("[client] ignoring unknown event: %s", event.Event)
	}
}

func (c *Client) handleStreamChunk(raw json.RawMessage) {
	var chunkEvent chat.StreamChunk
	if err := json.Unmarshal(raw, &chunkEvent); err != nil {
		log.Printf("[client] invalid stream-chunk payload: %v", err)
		return
	}

	if !chunkEvent.IsComplete {
		c.mu.Lock()
		builder, ok := c.partial[chunkEvent.StreamID]
		if !ok {
			builder = &strings.Builder{}
			c.partial[chunkEvent.StreamID] = builder
		}
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(chunkEvent.Text)
		c.mu.Unlock()

		if c.handlers.OnChunk != nil {
			c.handlers.OnChunk(chunkEvent.StreamID, chunkEvent.Text)
		}
		return
	}

	c.mu.Lock()
	if _, seen := c.applied[chunkEvent.StreamID]; seen {
		// at-least-once delivery on the wire can replay the terminal event
		c.mu.Unlock()
		return
	}
	c.applied[chunkEvent.StreamID] = struct{}{}

	full := chunkEvent.FullText
	if full == "" {
		if builder, ok := c.partial[chunkEvent.StreamID]; ok {
			if builder.Len() > 0 && chunkEvent.Text != "" {
				builder.WriteString(" ")
			}
			builder.WriteString(chunkEvent.Text)
			full = builder.String()
		} else {
			full = chunkEvent.Text
		}
	}
	delete(c.partial, chunkEvent.StreamID)
	c.mu.Unlock()

	if c.handlers.OnComplete != nil {
		c.handlers.OnComplete(chunkEvent.StreamID, full)
	}
}

func (c *Client) handleServerError(raw json.RawMessage) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}

	if strings.Contains(strings.ToLower(payload.Message), "authentication") {
		c.mu.Lock()
		c.authFailed = true
		c.mu.Unlock()
	}
	c.emitError(payload.Message)
}

func (c *Client) handleDisconnect(sock *websocket.Conn, err error) {
	c.mu.Lock()
	if c.sock != sock {
		// a newer connection has already replaced this one
		c.mu.Unlock()
		return
	}
	c.sock = nil

	// per-connection dedup state does not survive the transport
	c.applied = make(map[string]struct{})
	c.partial = make(map[string]*strings.Builder)

	closed := c.closed
	authFailed := c.authFailed
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	sock.Close()

	if closed || authFailed {
		return
	}

	log.Printf("[client] connection lost: %v", err)
	c.scheduleReconnect()
}

// scheduleReconnect arms the retry timer with a delay proportional to the
// attempt count. Exhausting the cap reports a terminal error instead.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.authFailed || c.sock != nil {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.cfg.MaxRetries {
		c.mu.Unlock()
		c.emitError(ErrRetriesExhausted.Error())
		return
	}

	attempt := c.attempts
	if attempt == 0 {
		attempt = 1
	}
	delay := time.Duration(attempt) * c.cfg.RetryBaseDelay
	c.setStateLocked(StateReconnecting)
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = time.AfterFunc(delay, func() {
		if err := c.Connect(); err != nil {
			log.Printf("[client] reconnect failed: %v", err)
		}
	})
	c.mu.Unlock()
}

func (c *Client) sendJoin() {
	if err := c.writeEvent("join", map[string]string{"userId": c.cfg.UserID}); err != nil {
		log.Printf("[client] join failed: %v", err)
	}
}

func (c *Client) writeEvent(event string, data any) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return errors.New("not connected")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sock.WriteJSON(wsconn.Event{Event: event, Data: payload})
}

func (c *Client) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state
	if c.handlers.OnState != nil {
		go c.handlers.OnState(state)
	}
}

func (c *Client) emitError(message string) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(message)
	}
}
