package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/triage-ai/lark-agent/internal/store"
)

// testAPIKey is the raw key used in tests; its first 8 chars are the prefix.
const testAPIKey = "lak_test_valid_key_1234567890abcdef"

// testHash returns a bcrypt hash of testAPIKey using MinCost.
func testHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

// mockStore implements ClientStore for testing.
type mockStore struct {
	client    atomic.Pointer[store.APIClient]
	err       error
	callCount atomic.Int32
}

func (m *mockStore) LookupByPrefix(_ context.Context, _ string) (*store.APIClient, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	c := m.client.Load()
	if c == nil {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func newMock(c *store.APIClient) *mockStore {
	m := &mockStore{}
	m.client.Store(c)
	return m
}

func TestPostgresAuth_CacheMiss_ValidKey(t *testing.T) {
	clients := newMock(&store.APIClient{ID: "c_abc", Name: "ops-bot", APIKeyHash: testHash(t)})
	auth := NewPostgresAuthenticator(clients, time.Minute, zap.NewNop())

	p, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if p.ClientID != "c_abc" || p.Name != "ops-bot" || p.Source != "postgres" {
		t.Errorf("principal = %+v", p)
	}
	if clients.callCount.Load() != 1 {
		t.Errorf("expected 1 DB call, got %d", clients.callCount.Load())
	}
}

func TestPostgresAuth_CacheHit_NoDBCall(t *testing.T) {
	clients := newMock(&store.APIClient{ID: "c_abc", APIKeyHash: testHash(t)})
	auth := NewPostgresAuthenticator(clients, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if clients.callCount.Load() != 1 {
		t.Errorf("expected 1 DB call, got %d", clients.callCount.Load())
	}
}

func TestPostgresAuth_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		clients *mockStore
		key     string
		wantErr error
	}{
		{
			name:    "wrong key with matching prefix",
			clients: newMock(&store.APIClient{ID: "c_abc", APIKeyHash: testHash(t)}),
			key:     "lak_test_WRONG",
			wantErr: ErrInvalidAPIKey,
		},
		{
			name:    "unknown or revoked client",
			clients: newMock(nil),
			key:     testAPIKey,
			wantErr: ErrInvalidAPIKey,
		},
		{
			name:    "too short",
			clients: newMock(nil),
			key:     "lak_",
			wantErr: ErrInvalidAPIKey,
		},
		{
			name:    "missing",
			clients: newMock(nil),
			key:     "",
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "database down",
			clients: &mockStore{err: errors.New("connection refused")},
			key:     testAPIKey,
			wantErr: ErrAuthUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := NewPostgresAuthenticator(tt.clients, time.Minute, zap.NewNop())
			p, err := auth.Authenticate(context.Background(), tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if p != nil {
				t.Errorf("expected nil principal, got %+v", p)
			}
		})
	}
}

func TestPostgresAuth_FailuresAreNotCached(t *testing.T) {
	clients := &mockStore{err: errors.New("timeout")}
	auth := NewPostgresAuthenticator(clients, time.Minute, zap.NewNop())

	_, _ = auth.Authenticate(context.Background(), testAPIKey)
	_, _ = auth.Authenticate(context.Background(), testAPIKey)
	if clients.callCount.Load() != 2 {
		t.Errorf("expected 2 DB calls, got %d", clients.callCount.Load())
	}
}

func TestPostgresAuth_StaleHit_ServesStaleAndRefreshes(t *testing.T) {
	hash := testHash(t)
	clients := newMock(&store.APIClient{ID: "c_stale", Name: "before", APIKeyHash: hash})
	auth := NewPostgresAuthenticator(clients, time.Millisecond, zap.NewNop())

	p, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil || p.Name != "before" {
		t.Fatalf("first call = %+v, %v", p, err)
	}

	time.Sleep(5 * time.Millisecond)
	clients.client.Store(&store.APIClient{ID: "c_stale", Name: "after", APIKeyHash: hash})

	p2, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if p2.Name != "before" {
		t.Errorf("stale hit should return the old principal, got %s", p2.Name)
	}

	deadline := time.Now().Add(2 * time.Second)
	for clients.callCount.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	p3, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("third call failed: %v", err)
	}
	if p3.Name != "after" {
		t.Errorf("expected refreshed principal, got %s", p3.Name)
	}
}

func TestPostgresAuth_RevokedDuringStaleRefresh(t *testing.T) {
	clients := newMock(&store.APIClient{ID: "c_rev", APIKeyHash: testHash(t)})
	auth := NewPostgresAuthenticator(clients, time.Millisecond, zap.NewNop())

	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	clients.client.Store(nil)

	// Stale hit still served; the refresh finds the client revoked and drops it.
	if _, err := auth.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatalf("stale call failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for auth.cache.Get(testAPIKey).Hit && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := auth.Authenticate(context.Background(), testAPIKey); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("err = %v, want ErrInvalidAPIKey after revocation", err)
	}
}
