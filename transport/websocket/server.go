package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pairgrid/tictactoe-backend/internal/entity"
	"github.com/pairgrid/tictactoe-backend/internal/metrics"
	"github.com/pairgrid/tictactoe-backend/internal/usecase"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type gameManager interface {
	SubmitName(ctx context.Context, connID, name string) (*usecase.PairingResult, error)
	MakeTurn(ctx context.Context, connID string, cell int, claimedMark entity.Mark) (*usecase.TurnResult, error)
	Restart(ctx context.Context, connID string) (*usecase.RestartResult, error)
	Disconnect(ctx context.Context, connID string) error
}

type Server struct {
	logger  *slog.Logger
	game    gameManager
	metrics *metrics.Metrics
	hub     *Hub

	handlers map[string]func(ctx context.Context, connID string, payload json.RawMessage) error
}

func New(logger *slog.Logger, game gameManager, m *metrics.Metrics, hub *Hub) *Server {
	server := &Server{
		logger:  logger,
		game:    game,
		metrics: m,
		hub:     hub,

		handlers: make(map[string]func(context.Context, string, json.RawMessage) error),
	}

	server.handlers[actionSubmitName] = server.handleSubmitName
	server.handlers[actionMove] = server.handleMove
	server.handlers[actionRestart] = server.handleRestart

	return server
}

// Start - starts the WebSocket server and shuts it down when ctx is canceled.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveConnection(ctx, w, r)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// serveConnection - upgrades the request, assigns a connection identity and
// runs the read loop until the client goes away.
func (that *Server) serveConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serveConnection")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	client := newConnection(uuid.NewString(), conn)
	log = log.With("connID", client.id)

	that.hub.register(client)
	that.metrics.ConnectionsActive.Inc()
	log.Info("connection established")

	go that.hub.writePump(client)

	that.readLoop(ctx, client)

	// remove the registry record before the wire: once Disconnect returns
	// nobody can be paired with this identity, and any pairing that raced in
	// earlier still had a registered (if dead) connection to address
	if err = that.game.Disconnect(ctx, client.id); err != nil {
		log.Error("failed to clean up after disconnect", "error", err)
	}

	that.hub.unregister(client.id)
	that.metrics.ConnectionsActive.Dec()

	log.Info("connection closed")
}

// readLoop - decodes envelopes and dispatches them. Every rejection is a
// logged no-op; no error event goes back to the client.
func (that *Server) readLoop(ctx context.Context, client *connection) {
	log := that.logger.With("method", "readLoop", "connID", client.id)

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			log.Debug("read failed", "error", err)
			return
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			continue
		}

		if err = handler(ctx, client.id, message.Payload); err != nil {
			log.Warn("event dropped", "action", message.Action, "error", err)
		}
	}
}
