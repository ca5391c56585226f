// Package redisusage keeps a per-user daily download counter in Redis.
package redisusage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mediatools/internal/domain"
)

const (
	defaultPrefix = "mediatools:usage:"
	keyTTL        = 48 * time.Hour
)

// Store implements domain.UsageStore with one INCR key per user and day.
type Store struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// New builds a Store on an existing client.
func New(client redis.Cmdable) *Store {
	return &Store{client: client, prefix: defaultPrefix, now: time.Now}
}

// CurrentUsage returns today's counter, zero when the key is missing.
func (s *Store) CurrentUsage(ctx context.Context, userID string) (int, error) {
	n, err := s.client.Get(ctx, s.key(userID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get usage: %w", err)
	}
	return n, nil
}

// RecordUsage increments today's counter and refreshes its expiry.
func (s *Store) RecordUsage(ctx context.Context, userID string, delta int) (int, error) {
	key := s.key(userID)
	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, int64(delta))
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr usage: %w", err)
	}
	return int(incr.Val()), nil
}

func (s *Store) key(userID string) string {
	return s.prefix + userID + ":" + s.now().UTC().Format("20060102")
}

var _ domain.UsageStore = (*Store)(nil)
