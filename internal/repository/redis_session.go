package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pairgrid/tictactoe-backend/internal/entity"
)

type redisSessions struct {
	client *redis.Client
}

func NewRedisSessionRepository(client *redis.Client) SessionRepository {
	return &redisSessions{
		client: client,
	}
}

func (that *redisSessions) CreateOrUpdate(ctx context.Context, session *entity.Session) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err = that.client.Set(ctx, "session:"+session.Key, sessionJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	return nil
}

func (that *redisSessions) GetByKey(ctx context.Context, key string) (*entity.Session, error) {
	response, err := that.client.Get(ctx, "session:"+key).Result()

	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session by key: %w", err)
	}

	var existingSession entity.Session
	if err = json.Unmarshal([]byte(response), &existingSession); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &existingSession, nil
}

func (that *redisSessions) DeleteByKey(ctx context.Context, key string) error {
	if err := that.client.Del(ctx, "session:"+key).Err(); err != nil {
		return fmt.Errorf("failed to delete session by key: %w", err)
	}

	return nil
}
