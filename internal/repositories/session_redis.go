package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/velist/velist/internal/models"
)

const defaultRedisPrefix = "velist"

// RedisSessionStore is the Redis session registry. Each record lives under its
// own key with a TTL matching the token expiry; a per-user set indexes them.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisSessionStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + ":session:" + id
}

func (s *RedisSessionStore) userKey(userID string) string {
	return s.prefix + ":user_sessions:" + userID
}

func (s *RedisSessionStore) Create(ctx context.Context, session *models.Session) error {
	now := s.now().UTC()
	ttl := session.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}

	session.CreatedAt = now
	session.LastActivity = now
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	userKey := s.userKey(session.UserID)
	// The index must live at least as long as the longest session it lists.
	indexTTL, err := s.client.TTL(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read session index ttl: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(session.ID), data, ttl)
		pipe.SAdd(ctx, userKey, session.ID)
		if indexTTL < ttl {
			pipe.Expire(ctx, userKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return n == 1, nil
}

// Delete is idempotent.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.SRem(ctx, s.userKey(session.UserID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	userKey := s.userKey(userID)

	ids, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}

	var deleted int64
	if len(keys) > 0 {
		deleted, err = s.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to delete user sessions: %w", err)
		}
	}
	if err := s.client.Del(ctx, userKey).Err(); err != nil {
		return deleted, fmt.Errorf("failed to delete session index: %w", err)
	}
	return deleted, nil
}

