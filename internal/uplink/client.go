// Package uplink forwards tracking snapshots to a remote collector over a
// WebSocket and accepts calibration and config commands from it.
package uplink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-pdr/internal/pdr"
	"github.com/teslashibe/go-pdr/internal/protocol"
)

const handshakeTimeout = 10 * time.Second

// ErrNotConnected is returned when sending while the link is down.
var ErrNotConnected = errors.New("uplink: not connected")

// Config holds uplink client configuration
type Config struct {
	URL              string        // collector endpoint, e.g. ws://collector:8080/ws/pdr
	ReconnectBackoff time.Duration // first retry delay, doubled per failure
	MaxBackoff       time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:8080/ws/pdr",
		ReconnectBackoff: 1 * time.Second,
		MaxBackoff:       30 * time.Second,
		PingInterval:     10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// handlers receive collector commands; a nil handler ignores the command.
type handlers struct {
	calibrate func(protocol.CalibrateCommand)
	config    func(protocol.ConfigUpdate)
	link      func(up bool)
}

// Client keeps one WebSocket open to the collector, redialing with
// exponential backoff whenever it drops.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn // nil while down
	cancel context.CancelFunc
	on     handlers

	// gorilla allows a single concurrent writer of data frames
	writeMu sync.Mutex

	sent       atomic.Uint64
	received   atomic.Uint64
	reconnects atomic.Uint64
}

// NewClient creates a new uplink client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

// OnCalibrate sets the handler for remote position corrections.
func (c *Client) OnCalibrate(fn func(protocol.CalibrateCommand)) {
	c.mu.Lock()
	c.on.calibrate = fn
	c.mu.Unlock()
}

// OnConfigUpdate sets the handler for remote threshold changes.
func (c *Client) OnConfigUpdate(fn func(protocol.ConfigUpdate)) {
	c.mu.Lock()
	c.on.config = fn
	c.mu.Unlock()
}

// OnConnectionChange sets a handler fired when the link comes up or drops.
// It runs on the connection goroutine, so it may send.
func (c *Client) OnConnectionChange(fn func(up bool)) {
	c.mu.Lock()
	c.on.link = fn
	c.mu.Unlock()
}

func (c *Client) handlers() handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on
}

// Connect starts the dial/receive loop in the background. It never fails;
// an unreachable collector is retried until ctx ends or Close is called.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.maintain(ctx)
	return nil
}

// maintain dials, serves the connection until it breaks, and redials.
func (c *Client) maintain(ctx context.Context) {
	defer c.drop()

	delay := c.cfg.ReconnectBackoff
	for ctx.Err() == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("uplink dial failed", "url", c.cfg.URL, "error", err, "retry_in", delay)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			delay = nextBackoff(delay, c.cfg.MaxBackoff)
			c.reconnects.Add(1)
			continue
		}

		delay = c.cfg.ReconnectBackoff
		c.serve(ctx, conn)
	}
}

func nextBackoff(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}

// dial opens the socket and publishes it as the current connection.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("uplink connected", "url", c.cfg.URL)
	if fn := c.handlers().link; fn != nil {
		fn(true)
	}
	return conn, nil
}

// serve reads collector messages until the connection fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go c.keepalive(conn, stop)

	// Unblock ReadMessage on shutdown
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("uplink read failed", "error", err)
			}
			c.drop()
			return
		}

		c.received.Add(1)
		c.dispatch(data)
	}
}

// keepalive pings conn until stop is closed or a ping fails.
func (c *Client) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("uplink ping failed", "error", err)
				return
			}
		}
	}
}

// dispatch routes one collector message to its handler.
func (c *Client) dispatch(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.logger.Warn("uplink message rejected", "error", err)
		return
	}

	on := c.handlers()

	switch msg.Type {
	case protocol.TypeCalibrate:
		cmd, err := msg.GetCalibrateCommand()
		if err != nil {
			c.logger.Warn("invalid remote calibration", "error", err)
			return
		}
		if on.calibrate != nil {
			on.calibrate(*cmd)
		}

	case protocol.TypeConfig:
		update, err := msg.GetConfigUpdate()
		if err != nil {
			c.logger.Warn("invalid remote config", "error", err)
			return
		}
		if on.config != nil {
			on.config(*update)
		}

	case protocol.TypePing:
		pong, _ := protocol.NewMessage(protocol.TypePong, nil)
		c.SendMessage(pong)

	default:
		c.logger.Debug("ignoring uplink message", "type", msg.Type)
	}
}

// drop closes the current connection, if any, and reports the link down.
func (c *Client) drop() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	conn.Close()

	if fn := c.handlers().link; fn != nil {
		fn(false)
	}
}

// SendMessage writes msg to the collector.
func (c *Client) SendMessage(msg *protocol.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		// The read side notices the broken socket and redials
		conn.Close()
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}

	c.sent.Add(1)
	return nil
}

// SendSnapshot sends a tracking snapshot
func (c *Client) SendSnapshot(snap pdr.Snapshot) error {
	msg, err := protocol.NewSnapshotMessage(snap)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// Forward sends snapshots from updates until ctx is done or the channel is
// closed. Updates arriving faster than interval are coalesced and only the
// newest is sent; nothing is queued while disconnected.
func (c *Client) Forward(ctx context.Context, updates <-chan pdr.Snapshot, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending *pdr.Snapshot

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			pending = &snap
		case <-ticker.C:
			if pending == nil || !c.IsConnected() {
				continue
			}
			if err := c.SendSnapshot(*pending); err != nil {
				c.logger.Debug("snapshot not forwarded", "error", err)
			}
			pending = nil
		}
	}
}

// Close stops redialing and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.drop()
	return nil
}

// IsConnected reports whether the link is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Stats returns client statistics
type Stats struct {
	Connected        bool   `json:"connected"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`
	Reconnects       uint64 `json:"reconnects"`
}

// GetStats returns client statistics
func (c *Client) GetStats() Stats {
	return Stats{
		Connected:        c.IsConnected(),
		MessagesSent:     c.sent.Load(),
		MessagesReceived: c.received.Load(),
		Reconnects:       c.reconnects.Load(),
	}
}
