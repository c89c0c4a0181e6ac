package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/triage-ai/lark-agent/internal/config"
)

func TestRedisStore_Claim(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s := NewRedisStore(config.RedisConfig{Addr: mr.Addr()}, time.Minute)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	first, err := s.Claim(ctx, 42)
	if err != nil || !first {
		t.Fatalf("first Claim = %v, %v; want true", first, err)
	}
	again, err := s.Claim(ctx, 42)
	if err != nil || again {
		t.Fatalf("second Claim = %v, %v; want false", again, err)
	}
	other, _ := s.Claim(ctx, 43)
	if !other {
		t.Error("a different id should be claimable")
	}

	if ttl := mr.TTL(keyPrefix + "42"); ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	expired, _ := s.Claim(ctx, 42)
	if !expired {
		t.Error("id should be claimable again after the ttl")
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	s := NewRedisStore(config.RedisConfig{Addr: mr.Addr()}, time.Minute)
	defer s.Close()
	mr.Close()

	if _, err := s.Claim(context.Background(), 1); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestMemoryStore_Claim(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	tests := []struct {
		name    string
		id      int64
		advance time.Duration
		want    bool
	}{
		{"first", 1, 0, true},
		{"duplicate", 1, 0, false},
		{"other id", 2, 0, true},
		{"still within ttl", 1, 59 * time.Minute, false},
		{"after ttl", 1, 2 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = now.Add(tt.advance)
			got, err := s.Claim(ctx, tt.id)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if got != tt.want {
				t.Errorf("Claim(%d) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestMemoryStore_ConcurrentClaims(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Claim(context.Background(), 7); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("wins = %d, want 1", wins.Load())
	}
}
