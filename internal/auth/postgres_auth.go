package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/triage-ai/lark-agent/internal/store"
)

// ClientStore abstracts the client lookup for testability.
type ClientStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*store.APIClient, error)
}

// PostgresAuthenticator validates API keys against the api_clients table.
// Revoked clients stop authenticating once their cache entry is refreshed.
type PostgresAuthenticator struct {
	store  ClientStore
	cache  *AuthCache
	logger *zap.Logger
}

// NewPostgresAuthenticator creates an authenticator backed by clients.
// A zero ttl defaults to 30s.
func NewPostgresAuthenticator(clients ClientStore, ttl time.Duration, logger *zap.Logger) *PostgresAuthenticator {
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:  clients,
		cache:  NewAuthCache(ttl),
		logger: logger,
	}
}

// Authenticate checks the cache first. A stale hit is served immediately and
// refreshed in the background; a miss does the lookup synchronously.
func (a *PostgresAuthenticator) Authenticate(ctx context.Context, apiKey string) (*Principal, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	result := a.cache.Get(apiKey)
	if result.Hit {
		if result.NeedsRefresh {
			go a.backgroundRefresh(apiKey)
		}
		return result.Principal, nil
	}

	p, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		return nil, a.lookupError(err)
	}
	a.cache.Set(apiKey, p)
	return p, nil
}

func (a *PostgresAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background auth cache refresh failed", zap.Error(err))
		// Dropping the entry makes the next request look the key up again.
		a.cache.Delete(apiKey)
		return
	}
	a.cache.Set(apiKey, p)
}

func (a *PostgresAuthenticator) lookupAndVerify(ctx context.Context, apiKey string) (*Principal, error) {
	if len(apiKey) < store.PrefixLen {
		return nil, ErrInvalidAPIKey
	}

	c, err := a.store.LookupByPrefix(ctx, apiKey[:store.PrefixLen])
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(c.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrInvalidAPIKey
	}
	return &Principal{ClientID: c.ID, Name: c.Name, Source: "postgres"}, nil
}

func (a *PostgresAuthenticator) lookupError(err error) error {
	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrInvalidAPIKey
	}
	a.logger.Warn("auth DB unreachable", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
}
