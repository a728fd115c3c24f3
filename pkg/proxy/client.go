// Package proxy implements the WebSocket proxy between the browser and the
// controller: Session is the inbound leg, Client the outbound one. The
// proxy is pure pass-through; it never drops or reorders a frame, it only
// observes them (for login tracking) and intercepts the in-band Deployer
// sub-protocol.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is the outbound WebSocket connection to the controller. Frames
// written before the handshake completes are queued and drained strictly in
// FIFO order once the connection opens. There is no reconnect: a dropped
// controller connection ends the session that owns it.
type Client struct {
	url       string
	origin    string
	onMessage func([]byte)
	onClose   func(error)
	logger    *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	queue     [][]byte
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// URL is the controller WebSocket endpoint.
	URL string

	// Origin is sent in the handshake Origin header. The controller
	// requires one; the session propagates the browser's.
	Origin string

	// OnMessage is invoked with the payload of every inbound frame.
	OnMessage func([]byte)

	// OnClose is invoked once when the connection terminates after a
	// successful Connect, with the read error that ended it.
	OnClose func(error)

	Logger *slog.Logger
}

// NewClient returns an unconnected Client.
func NewClient(opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:       opts.URL,
		origin:    opts.Origin,
		onMessage: opts.OnMessage,
		onClose:   opts.OnClose,
		logger:    logger.With("component", "ws-client"),
	}
}

// Connect dials the controller and resolves once the connection is open,
// after which the pre-connect queue is flushed and the read loop starts.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.origin != "" {
		header.Set("Origin", c.origin)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("client closed")
	}
	c.conn = conn
	c.connected = true
	queue := c.queue
	c.queue = nil
	// Drain under the lock so no later Write can overtake a queued frame.
	for _, msg := range queue {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("flush queued message: %w", err)
		}
	}
	c.mu.Unlock()

	c.logger.Debug("connected", "url", c.url, "flushed", len(queue))
	go c.readLoop(conn)
	return nil
}

// Connected reports whether the controller connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Write sends a frame if connected, otherwise appends it to the
// pre-connect queue.
func (c *Client) Write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("client closed")
	}
	if !c.connected {
		c.logger.Debug("queueing message", "bytes", len(msg))
		c.queue = append(c.queue, msg)
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Close tears down the connection. The close hook is not invoked for a
// locally initiated close.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closedLocally := c.closed
			c.connected = false
			c.mu.Unlock()
			if !closedLocally && c.onClose != nil {
				c.onClose(err)
			}
			return
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}
