package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/pairgrid/tictactoe-backend/internal/entity"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository maps canonical pair keys to live game sessions.
type SessionRepository interface {
	CreateOrUpdate(ctx context.Context, session *entity.Session) error
	GetByKey(ctx context.Context, key string) (*entity.Session, error)
	DeleteByKey(ctx context.Context, key string) error
}

type memorySessions struct {
	mu       sync.RWMutex
	sessions map[string]entity.Session
}

func NewMemorySessionRepository() SessionRepository {
	return &memorySessions{
		sessions: make(map[string]entity.Session),
	}
}

func (that *memorySessions) CreateOrUpdate(_ context.Context, session *entity.Session) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.sessions[session.Key] = *session

	return nil
}

func (that *memorySessions) GetByKey(_ context.Context, key string) (*entity.Session, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	session, ok := that.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return &session, nil
}

func (that *memorySessions) DeleteByKey(_ context.Context, key string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.sessions, key)

	return nil
}
