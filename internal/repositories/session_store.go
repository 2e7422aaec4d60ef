package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/velist/velist/internal/config"
	"github.com/velist/velist/internal/database"
	"github.com/velist/velist/internal/models"
)

// SessionRegistry is implemented by SessionRepository and RedisSessionStore.
type SessionRegistry interface {
	Create(ctx context.Context, session *models.Session) error
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}

// OpenSessionStore returns the registry selected by SESSION_STORE and a
// function releasing its resources. The registry is nil for "none".
func OpenSessionStore(ctx context.Context, cfg *config.Config, db *database.DB) (SessionRegistry, func(), error) {
	noop := func() {}

	switch cfg.Auth.SessionStore {
	case config.SessionStoreNone:
		return nil, noop, nil

	case config.SessionStoreRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, noop, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisSessionStore(client, ""), func() { _ = client.Close() }, nil

	default:
		return NewSessionRepository(db), noop, nil
	}
}
