// Package events broadcasts runtime Signal events to connected
// operator WebSocket clients. Adapted from the teacher's
// ConnectionManager: this system has no per-pod NOTIFY fan-out to
// coordinate (one runtime process owns the EventBus in-process) and
// no catchup requirement (Signals are explicitly non-replayable —
// spec.md §3's Event role distinction), so the teacher's
// channel-subscription/LISTEN/catchup machinery is dropped entirely.
// What's kept is the connection bookkeeping and the
// snapshot-then-send broadcast idiom.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/civicsync/civicsync/pkg/runtime"
)

// Connection represents a single WebSocket client tailing the event
// bus's Signal stream.
type Connection struct {
	ID     string
	Conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// ConnectionManager tracks active WebSocket connections and fans a
// single runtime.EventBus's Signals out to all of them.
type ConnectionManager struct {
	mu           sync.RWMutex
	connections  map[string]*Connection
	writeTimeout time.Duration
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager(writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		connections:  make(map[string]*Connection),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages the lifecycle of a single WebSocket
// connection: registers it, tails bus for Signals addressed to every
// connection, and blocks until the connection closes or ctx is
// cancelled. Called by the HTTP handler after upgrade.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, bus *runtime.EventBus) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{ID: connID, Conn: conn, ctx: ctx, cancel: cancel}
	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	receiver := bus.Subscribe()
	defer bus.Unsubscribe(receiver)

	// Drain client reads on a separate goroutine purely to notice
	// disconnects (this admin surface takes no client commands, unlike
	// the teacher's subscribe/unsubscribe/catchup protocol).
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		env, lagged, busClosed := receiver.Recv()
		if busClosed {
			return
		}
		if lagged > 0 {
			m.sendJSON(c, map[string]any{"type": "lagged", "count": lagged})
			continue
		}
		if env.Payload == nil || !env.Payload.Role().IsSignal() {
			continue
		}
		m.sendJSON(c, map[string]any{
			"type":           env.Tag.String(),
			"correlation_id": env.Cid.String(),
			"payload":        env.Payload,
		})
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

func (m *ConnectionManager) unregisterConnection(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal websocket message", "connection_id", c.ID, "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	if err := c.Conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("failed to send websocket message", "connection_id", c.ID, "error", err)
	}
}
