package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/medtriage-server/internal/domain"
)

const (
	sessionKeyPrefix   = "medtriage:session:"
	tombstoneKeyPrefix = "medtriage:tombstone:"
	lockKeyPrefix      = "medtriage:lock:"
	lockTTL            = 5 * time.Minute
)

// RedisStore keeps session state in redis as JSON with a TTL, for
// deployments where multiple instances share sessions. Expired or deleted
// sessions leave a tombstone key so Get can report staleness.
type RedisStore struct {
	client       *redis.Client
	ttl          time.Duration
	tombstoneTTL time.Duration
	logger       *logrus.Logger
}

// NewRedisStore creates a redis-backed session store.
func NewRedisStore(cfg domain.SessionConfig, logger *logrus.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client:       client,
		ttl:          cfg.TTL,
		tombstoneTTL: cfg.TombstoneTTL,
		logger:       logger,
	}, nil
}

// Get returns the session state, ErrSessionStale when only a tombstone
// remains, or ErrSessionNotFound for unknown IDs.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err == nil {
		state := &domain.SessionState{}
		if err := json.Unmarshal(data, state); err != nil {
			return nil, fmt.Errorf("failed to decode session state: %w", err)
		}
		return state, nil
	}
	if err != redis.Nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	exists, err := s.client.Exists(ctx, tombstoneKeyPrefix+sessionID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check tombstone: %w", err)
	}
	if exists > 0 {
		return nil, domain.ErrSessionStale
	}
	return nil, domain.ErrSessionNotFound
}

// Put stores the session state and refreshes its TTL. A tombstone also
// gets written so expiry later reads as stale rather than not-found.
func (s *RedisStore) Put(ctx context.Context, state *domain.SessionState) error {
	state.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+state.SessionID, data, s.ttl)
	pipe.Set(ctx, tombstoneKeyPrefix+state.SessionID, "1", s.tombstoneTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Delete removes the session record; its tombstone stays behind.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Acquire takes a distributed per-session lock via SET NX. The lock TTL
// bounds how long a crashed handler can wedge a session.
func (s *RedisStore) Acquire(sessionID string) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	key := lockKeyPrefix + sessionID
	ok, err := s.client.SetNX(ctx, key, "1", lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrSessionBusy
	}

	release := func() {
		rctx, rcancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer rcancel()
		if err := s.client.Del(rctx, key).Err(); err != nil && s.logger != nil {
			s.logger.WithError(err).WithField("session_id", sessionID).
				Warn("Failed to release session lock")
		}
	}
	return release, nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
