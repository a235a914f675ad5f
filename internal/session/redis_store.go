package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/config"
)

// RedisStore implements Store against Redis, grounded on the teacher's
// internal/mcp/session.RedisStore: sessions are JSON blobs keyed by id,
// with Redis's own key expiry, renewed on every touch, standing in for the
// gorm store's cutoff-based SweepExpiredSessions.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore dials cfg and verifies connectivity with a Ping, the same
// fail-fast check the teacher's NewRedisStore performs.
func NewRedisStore(cfg config.SessionRedisConfig, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("session: connect redis: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, prefix: "mcp-gateway:session:", ttl: ttl}, nil
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) write(ctx context.Context, sess *catalog.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) CreateSession(ctx context.Context, sess *catalog.Session) error {
	return s.write(ctx, sess)
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (*catalog.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	var sess catalog.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) TouchSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	sess.LastAccessedAt = time.Now()
	return s.write(ctx, sess)
}

// UpdateSessionExternalMCPSession does a best-effort read-modify-write: the
// gorm store's row lock has no Redis analogue here, so a genuinely
// concurrent pair of upstream calls for the same server on the same
// session can race. Acceptable because the value being written is
// idempotent (the upstream's own current session id), so the last writer
// wins to a still-valid id rather than a corrupt one.
func (s *RedisStore) UpdateSessionExternalMCPSession(ctx context.Context, sessionID, serverID, upstreamSessionID string) error {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.ExternalMCPSessions == nil {
		sess.ExternalMCPSessions = map[string]string{}
	}
	sess.ExternalMCPSessions[serverID] = upstreamSessionID
	return s.write(ctx, sess)
}

// SweepExpiredSessions is a no-op: Redis's own TTL, refreshed by every
// TouchSession, already evicts idle sessions (§4.9) without a manual sweep.
func (s *RedisStore) SweepExpiredSessions(ctx context.Context, idleSince int64) (int, error) {
	return 0, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
