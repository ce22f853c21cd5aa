package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pairgrid/tictactoe-backend/internal/config"
	"github.com/pairgrid/tictactoe-backend/internal/metrics"
	"github.com/pairgrid/tictactoe-backend/internal/repository"
	"github.com/pairgrid/tictactoe-backend/internal/repository/storage"
	"github.com/pairgrid/tictactoe-backend/internal/usecase"
	"github.com/pairgrid/tictactoe-backend/transport/rest"
	"github.com/pairgrid/tictactoe-backend/transport/websocket"
)

var ErrUnknownStorage = errors.New("unknown storage backend")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	registry := prometheus.NewRegistry()
	gameMetrics := metrics.New(registry)

	var players repository.PlayerRegistry
	var sessions repository.SessionRepository

	switch conf.Storage {
	case config.StorageRedis:
		redisClient, err := storage.New(ctx, conf.Redis.GetRedisAddr())
		if err != nil {
			return fmt.Errorf("could not connect to redis storage: %w", err)
		}

		defer func() {
			if err = redisClient.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}()

		players = repository.NewRedisPlayerRegistry(redisClient)
		sessions = repository.NewRedisSessionRepository(redisClient)
	case config.StorageMemory:
		players = repository.NewMemoryPlayerRegistry()
		sessions = repository.NewMemorySessionRepository()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStorage, conf.Storage)
	}

	hub := websocket.NewHub(logger)
	gameManager := usecase.NewGameManager(logger, gameMetrics, players, sessions, hub)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(conf.HTTPPort, registry); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run WebSocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, gameManager, gameMetrics, hub)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err := <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err := <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}
