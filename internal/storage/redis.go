package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dgellow/checkin-front/internal/browserauth"
	"github.com/dgellow/checkin-front/internal/log"
)

var _ Storage = (*RedisStorage)(nil)

const (
	sessionKeySegment = "session:"
	pendingKeySegment = "state:"
)

// RedisOptions configures the connection pool
type RedisOptions struct {
	URL       string
	KeyPrefix string
	PoolSize  int
}

// RedisStorage keeps sessions and pending states as JSON values with native
// key expiry, so no cleanup loop is needed.
type RedisStorage struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStorage connects and pings the server
func NewRedisStorage(ctx context.Context, opts RedisOptions) (*RedisStorage, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Redis", map[string]any{
		"addr":      redisOpts.Addr,
		"db":        redisOpts.DB,
		"keyPrefix": opts.KeyPrefix,
	})

	return NewRedisStorageFromClient(client, opts.KeyPrefix), nil
}

// NewRedisStorageFromClient wraps an existing client. The storage takes
// ownership and closes it on Close.
func NewRedisStorageFromClient(client *redis.Client, keyPrefix string) *RedisStorage {
	return &RedisStorage{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStorage) sessionKey(id string) string {
	return s.keyPrefix + sessionKeySegment + id
}

func (s *RedisStorage) pendingKey(nonce string) string {
	return s.keyPrefix + pendingKeySegment + nonce
}

func (s *RedisStorage) Get(ctx context.Context, id string) (*Session, error) {
	defer observe("redis", "get", time.Now())

	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if session.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *RedisStorage) Put(ctx context.Context, session *Session) error {
	defer observe("redis", "put", time.Now())

	ttl := session.TTL(time.Now())
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, s.sessionKey(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *RedisStorage) Delete(ctx context.Context, id string) error {
	defer observe("redis", "delete", time.Now())

	if err := s.client.Del(ctx, s.sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (s *RedisStorage) PutPending(ctx context.Context, pending browserauth.PendingAuth, ttl time.Duration) error {
	defer observe("redis", "put_pending", time.Now())

	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encoding pending auth: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.pendingKey(pending.Nonce), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis set pending auth: %w", err)
	}
	if !ok {
		return fmt.Errorf("pending auth nonce collision")
	}
	return nil
}

func (s *RedisStorage) TakePending(ctx context.Context, nonce string) (*browserauth.PendingAuth, error) {
	defer observe("redis", "take_pending", time.Now())

	// GETDEL makes redemption atomic across instances
	data, err := s.client.GetDel(ctx, s.pendingKey(nonce)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPendingAuthNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis take pending auth: %w", err)
	}

	var pending browserauth.PendingAuth
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("decoding pending auth: %w", err)
	}
	return &pending, nil
}

// Ping checks if the Redis connection is healthy
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
