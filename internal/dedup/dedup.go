// Package dedup records which inbound webhook updates were already accepted.
package dedup

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/triage-ai/lark-agent/internal/config"
)

const keyPrefix = "lark-agent:tg:update:"

// Store claims update ids. Claim reports true only for the first caller to
// claim id within the TTL.
type Store interface {
	Claim(ctx context.Context, id int64) (bool, error)
	Close() error
}

// RedisStore claims ids with SET NX so every replica sees the same claims.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(cfg config.RedisConfig, ttl time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisStore{client: rdb, ttl: ttl}
}

func (s *RedisStore) Claim(ctx context.Context, id int64) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+strconv.FormatInt(id, 10), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("Claim: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is a process-local Store. Expired ids are swept on Claim.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	seen   map[int64]time.Time
	now    func() time.Time
	sweeps int
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, seen: make(map[int64]time.Time), now: time.Now}
}

func (s *MemoryStore) Claim(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweeps++
	if s.sweeps%128 == 0 {
		for k, exp := range s.seen {
			if now.After(exp) {
				delete(s.seen, k)
			}
		}
	}

	if exp, ok := s.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	s.seen[id] = now.Add(s.ttl)
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }
