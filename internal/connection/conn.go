package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one observer's websocket connection.
type Conn struct {
	cfg    Config
	logger *slog.Logger
	ws     *websocket.Conn

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	closed     bool
	lastPongAt time.Time
	done       chan struct{}
}

// Upgrade upgrades an HTTP request to an observer connection.
func Upgrade(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, cfg Config, logger *slog.Logger) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(ws, cfg, logger), nil
}

// NewConn wraps an established websocket.
func NewConn(ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.MaxMessage <= 0 {
		cfg.MaxMessage = def.MaxMessage
	}

	return &Conn{
		cfg:        cfg,
		logger:     logger,
		ws:         ws,
		lastPongAt: time.Now(),
		done:       make(chan struct{}),
	}
}

// Send writes one text frame.
func (c *Conn) Send(data []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// LastPong returns when the peer last answered a ping.
func (c *Conn) LastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPongAt
}

// ReadLoop reads frames until the peer goes away, ctx is cancelled, or the
// connection goes stale, calling handle for each well-formed message.
// The connection is closed on return. A normal close returns nil.
func (c *Conn) ReadLoop(ctx context.Context, handle func(Message)) error {
	defer c.Close()

	c.ws.SetReadLimit(c.cfg.MaxMessage)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	go c.heartbeatLoop()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			return c.readError(err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			c.logger.Debug("ignoring malformed message", "size", len(data))
			continue
		}
		msg.ReceivedAt = receivedAt

		handle(msg)
	}
}

func (c *Conn) readError(err error) error {
	if c.IsClosed() {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.logger.Warn("no pong received, connection stale",
			"last_pong", c.LastPong(),
			"timeout", c.cfg.PongTimeout,
		)
		return ErrStaleConnection
	}
	return err
}

// heartbeatLoop pings the peer until the connection closes.
func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}
