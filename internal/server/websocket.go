package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-pdr/internal/pdr"
	"github.com/teslashibe/go-pdr/internal/protocol"
	"github.com/teslashibe/go-pdr/internal/tracker"
)

const broadcastInterval = 100 * time.Millisecond // 10Hz

// wsClient serializes writes to one connection; the broadcast loop and the
// command reader both write.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections and broadcasts tracking snapshots
type WSHub struct {
	tracker *tracker.Tracker
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*wsClient

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(tr *tracker.Tracker, logger *slog.Logger) *WSHub {
	return &WSHub{
		tracker: tr,
		logger:  logger,
		clients: make(map[*websocket.Conn]*wsClient),
		done:    make(chan struct{}),
	}
}

// Run starts the broadcast loop. Snapshots go out at 10Hz; a state change
// is pushed immediately as its own message.
func (h *WSHub) Run(ctx context.Context) {
	h.mu.Lock()
	ctx, h.cancel = context.WithCancel(ctx)
	h.mu.Unlock()
	defer close(h.done)

	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	lastState := pdr.StateIdle
	lastSteps := -1
	var lastPos pdr.Position

	h.logger.Info("websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopped")
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}

			snap := h.tracker.Latest()

			if snap.State != lastState {
				h.broadcast(protocol.TypeState, fiber.Map{
					"state":    snap.State,
					"previous": lastState,
				})
				lastState = snap.State
			}

			// Unchanged snapshots are only repeated while tracking
			changed := snap.StepCount != lastSteps || snap.Position != lastPos
			if !changed && snap.State != pdr.StateTracking {
				continue
			}
			lastSteps, lastPos = snap.StepCount, snap.Position

			h.broadcast(protocol.TypeSnapshot, snap)
		}
	}
}

func (h *WSHub) broadcast(msgType protocol.MessageType, data interface{}) {
	msg, err := protocol.NewMessage(msgType, data)
	if err != nil {
		h.logger.Warn("websocket marshal error", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if err := client.send(msg); err != nil {
			// Will be cleaned up when connection closes
			h.logger.Debug("websocket write error", "error", err)
		}
	}
}

// UpgradeHandler returns the WebSocket upgrade handler
func (h *WSHub) UpgradeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return websocket.New(h.handleConnection)(c)
		}

		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error":   "WebSocket upgrade required",
			"message": "Connect via WebSocket to receive the tracking stream",
		})
	}
}

func (h *WSHub) handleConnection(c *websocket.Conn) {
	client := &wsClient{conn: c}

	h.mu.Lock()
	h.clients[c] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		"remote_addr", c.RemoteAddr().String(),
		"clients", clientCount,
	)

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		clientCount := len(h.clients)
		h.mu.Unlock()

		h.logger.Info("websocket client disconnected",
			"remote_addr", c.RemoteAddr().String(),
			"clients", clientCount,
		)
	}()

	// Send the current snapshot right away
	if msg, err := protocol.NewSnapshotMessage(h.tracker.Latest()); err == nil {
		client.send(msg)
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			// Connection closed
			break
		}

		if reply := h.handleCommand(data); reply != nil {
			if err := client.send(reply); err != nil {
				break
			}
		}
	}
}

// handleCommand executes one client message and returns the reply, if any.
func (h *WSHub) handleCommand(data []byte) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return errorMessage("invalid message")
	}

	var reply *protocol.Message
	switch msg.Type {
	case protocol.TypePing:
		reply, err = protocol.NewMessage(protocol.TypePong, time.Now().Unix())

	case protocol.TypeGetStats:
		reply, err = protocol.NewMessage(protocol.TypeStats, h.tracker.Stats())

	case protocol.TypeGetSnapshot:
		reply, err = protocol.NewSnapshotMessage(h.tracker.Latest())

	case protocol.TypeCalibrate:
		cmd, perr := msg.GetCalibrateCommand()
		if perr != nil {
			return errorMessage("invalid calibration")
		}
		target, terr := cmd.Target()
		if terr != nil {
			return errorMessage(terr.Error())
		}
		kind, kerr := cmd.Kind()
		if kerr != nil {
			return errorMessage(kerr.Error())
		}
		reply, err = protocol.NewSnapshotMessage(h.tracker.Calibrate(target, kind))

	case protocol.TypeConfig:
		update, perr := msg.GetConfigUpdate()
		if perr != nil {
			return errorMessage("invalid config")
		}
		snap, uerr := h.tracker.UpdateConfig(update.Apply(h.tracker.Config()))
		if uerr != nil {
			return errorMessage(uerr.Error())
		}
		reply, err = protocol.NewSnapshotMessage(snap)

	default:
		return errorMessage("unknown message type " + string(msg.Type))
	}

	if err != nil {
		h.logger.Warn("websocket reply failed", "type", msg.Type, "error", err)
		return nil
	}
	return reply
}

func errorMessage(text string) *protocol.Message {
	msg, _ := protocol.NewMessage(protocol.TypeError, fiber.Map{"error": text})
	return msg
}

// ClientCount returns the number of connected WebSocket clients
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close shuts down the WebSocket hub
func (h *WSHub) Close() {
	h.mu.RLock()
	cancel := h.cancel
	h.mu.RUnlock()

	if cancel != nil {
		cancel()
		<-h.done
	}

	// Close all client connections
	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]*wsClient)
	h.mu.Unlock()
}
