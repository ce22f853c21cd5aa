package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/pairgrid/tictactoe-backend/internal/entity"
)

var (
	ErrPlayerNotFound  = errors.New("player not found")
	ErrNoWaitingPlayer = errors.New("no waiting player")
)

// PlayerRegistry maps connection identities to player records.
//
// FirstWaiting scans records in insertion order and returns the first one
// without a partner, excluding the caller. First-available wins; the order
// is an observable part of the matchmaking contract.
type PlayerRegistry interface {
	CreateOrUpdate(ctx context.Context, player *entity.Player) error
	GetByID(ctx context.Context, id string) (*entity.Player, error)
	FirstWaiting(ctx context.Context, excludeID string) (*entity.Player, error)
	DeleteByID(ctx context.Context, id string) error
}

type memoryRegistry struct {
	mu      sync.RWMutex
	players map[string]entity.Player
	order   []string
}

func NewMemoryPlayerRegistry() PlayerRegistry {
	return &memoryRegistry{
		players: make(map[string]entity.Player),
	}
}

func (that *memoryRegistry) CreateOrUpdate(_ context.Context, player *entity.Player) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.players[player.ID]; !ok {
		that.order = append(that.order, player.ID)
	}

	that.players[player.ID] = *player

	return nil
}

func (that *memoryRegistry) GetByID(_ context.Context, id string) (*entity.Player, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	player, ok := that.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}

	return &player, nil
}

func (that *memoryRegistry) FirstWaiting(_ context.Context, excludeID string) (*entity.Player, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	for _, id := range that.order {
		if id == excludeID {
			continue
		}

		player, ok := that.players[id]
		if !ok {
			continue
		}

		if !player.IsPaired() {
			return &player, nil
		}
	}

	return nil, ErrNoWaitingPlayer
}

func (that *memoryRegistry) DeleteByID(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.players, id)

	for i, orderedID := range that.order {
		if orderedID == id {
			that.order = append(that.order[:i], that.order[i+1:]...)
			break
		}
	}

	return nil
}
