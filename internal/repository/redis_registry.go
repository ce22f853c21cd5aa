package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pairgrid/tictactoe-backend/internal/entity"
)

const playersOrderKey = "players:order"

type redisRegistry struct {
	client *redis.Client
}

// NewRedisPlayerRegistry - stores player records as JSON blobs under
// "player:<id>" and keeps a separate list for the insertion-order scan.
func NewRedisPlayerRegistry(client *redis.Client) PlayerRegistry {
	return &redisRegistry{
		client: client,
	}
}

func (that *redisRegistry) CreateOrUpdate(ctx context.Context, player *entity.Player) error {
	playerJSON, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("failed to marshal player: %w", err)
	}

	playerKey := "player:" + player.ID

	exists, err := that.client.Exists(ctx, playerKey).Result()
	if err != nil {
		return fmt.Errorf("failed to check player existence: %w", err)
	}

	if err = that.client.Set(ctx, playerKey, playerJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to set player: %w", err)
	}

	if exists == 0 {
		if err = that.client.RPush(ctx, playersOrderKey, player.ID).Err(); err != nil {
			return fmt.Errorf("failed to push player order: %w", err)
		}
	}

	return nil
}

func (that *redisRegistry) GetByID(ctx context.Context, id string) (*entity.Player, error) {
	response, err := that.client.Get(ctx, "player:"+id).Result()

	if errors.Is(err, redis.Nil) {
		return nil, ErrPlayerNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get player by ID: %w", err)
	}

	var existingPlayer entity.Player
	if err = json.Unmarshal([]byte(response), &existingPlayer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal player: %w", err)
	}

	return &existingPlayer, nil
}

func (that *redisRegistry) FirstWaiting(ctx context.Context, excludeID string) (*entity.Player, error) {
	ids, err := that.client.LRange(ctx, playersOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read player order: %w", err)
	}

	for _, id := range ids {
		if id == excludeID {
			continue
		}

		player, err := that.GetByID(ctx, id)
		if errors.Is(err, ErrPlayerNotFound) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to scan waiting players: %w", err)
		}

		if !player.IsPaired() {
			return player, nil
		}
	}

	return nil, ErrNoWaitingPlayer
}

func (that *redisRegistry) DeleteByID(ctx context.Context, id string) error {
	if err := that.client.Del(ctx, "player:"+id).Err(); err != nil {
		return fmt.Errorf("failed to delete player by ID: %w", err)
	}

	if err := that.client.LRem(ctx, playersOrderKey, 0, id).Err(); err != nil {
		return fmt.Errorf("failed to remove player order: %w", err)
	}

	return nil
}
