package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"coverletterai/pkg/domain"
)

// DefaultTTL is how long a draft field lives after its last write.
const DefaultTTL = 1800 * time.Second

const opTimeout = 3 * time.Second

var (
	ErrUnknownField     = errors.New("unknown draft field")
	ErrSessionIDMissing = errors.New("session id is required")
)

// Store holds per-session draft fields. Every write resets the field's TTL.
type Store interface {
	Put(ctx context.Context, sessionID string, field domain.DraftField, value string) error
	Get(ctx context.Context, sessionID string, field domain.DraftField) (string, bool, error)
}

// RedisStore keeps draft fields in Redis as plain string keys with TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a draft store on a shared client. ttl <= 0 uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Key returns the storage key of a field: "{session_id}_{field}".
func Key(sessionID string, field domain.DraftField) string {
	return sessionID + "_" + string(field)
}

// Put overwrites the field value and resets its expiry.
func (s *RedisStore) Put(ctx context.Context, sessionID string, field domain.DraftField, value string) error {
	if err := checkArgs(sessionID, field); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.Set(ctx, Key(sessionID, field), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("store draft %s: %w", field, err)
	}
	return nil
}

// Get returns the field value, or ok=false when never written or expired.
func (s *RedisStore) Get(ctx context.Context, sessionID string, field domain.DraftField) (string, bool, error) {
	if err := checkArgs(sessionID, field); err != nil {
		return "", false, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	val, err := s.client.Get(ctx, Key(sessionID, field)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load draft %s: %w", field, err)
	}
	return val, true, nil
}

func checkArgs(sessionID string, field domain.DraftField) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionIDMissing
	}
	if !field.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}
