package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairgrid/tictactoe-backend/internal/entity"
)

const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// outgoing messages queued per connection; sends are fire-and-forget
	// and must never block event processing
	sendBufferSize = 16
)

// connection is one client with its server-assigned identity. The identity
// is stable for the connection lifetime and is the only correlation key.
type connection struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newConnection(id string, conn *websocket.Conn) *connection {
	return &connection{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// enqueue - queues data for the write pump. Never blocks: reports false when
// the connection is shut down or the buffer is full.
func (that *connection) enqueue(data []byte) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return false
	}

	select {
	case that.send <- data:
		return true
	default:
		return false
	}
}

// shutdown - closes the send queue exactly once. It shares the mutex with
// enqueue, so a concurrent sender can never hit the closed channel.
func (that *connection) shutdown() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return
	}

	that.closed = true
	close(that.send)
}

// Hub owns the connections map and is the only component that queues frames
// onto a connection. It implements the game manager's notifier, which calls
// it inside the manager's serialized section; every method here must return
// without blocking.
type Hub struct {
	logger *slog.Logger

	mu          sync.RWMutex
	connections map[string]*connection
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:      logger,
		connections: make(map[string]*connection),
	}
}

func (that *Hub) register(client *connection) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.connections[client.id] = client
}

// unregister - removes the connection and shuts its queue down. Late sends
// from other connections' events degrade to logged drops.
func (that *Hub) unregister(connID string) {
	that.mu.Lock()
	client, ok := that.connections[connID]
	delete(that.connections, connID)
	that.mu.Unlock()

	if ok {
		client.shutdown()
	}
}

// writePump - drains the send queue so a slow peer never blocks the event path.
func (that *Hub) writePump(client *connection) {
	defer client.conn.Close()

	for data := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))

		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			that.logger.Debug("write failed", "connID", client.id, "error", err)
			return
		}
	}

	_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// send - marshals an event for one connection, dropping it if the
// connection is gone or its buffer is full.
func (that *Hub) send(connID, action string, payload any) {
	log := that.logger.With("method", "send", "connID", connID, "action", action)

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to marshal payload", "error", err)
		return
	}

	data, err := json.Marshal(Message{Action: action, Payload: body})
	if err != nil {
		log.Error("failed to marshal message", "error", err)
		return
	}

	that.mu.RLock()
	client, ok := that.connections[connID]
	that.mu.RUnlock()

	if !ok {
		log.Warn("connection not found")
		return
	}

	if !client.enqueue(data) {
		log.Warn("message dropped")
	}
}

func (that *Hub) Waiting(connID string) {
	that.send(connID, actionWaiting, struct{}{})
}

func (that *Hub) Paired(connID, opponentName string, mark entity.Mark, movesFirst bool) {
	that.send(connID, actionPaired, PairedPayload{
		OpponentName: opponentName,
		Mark:         mark,
		MovesFirst:   movesFirst,
	})
}

func (that *Hub) BoardUpdate(connID string, board entity.Board, yourTurn bool) {
	that.send(connID, actionUpdate, UpdatePayload{Board: board, YourTurn: yourTurn})
}

func (that *Hub) GameOver(connID string, winner int8) {
	that.send(connID, actionGameOver, OverPayload{Winner: winner})
}

func (that *Hub) Restarted(connID string) {
	that.send(connID, actionRestarted, struct{}{})
}
