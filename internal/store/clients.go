package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix starts every generated API key.
const KeyPrefix = "lak_"

// PrefixLen is how much of a key is stored in clear for lookups.
const PrefixLen = 8

// APIClient represents a row in the api_clients table.
type APIClient struct {
	ID           string
	Name         string
	APIKeyHash   string
	APIKeyPrefix string
	RevokedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the client has not been revoked.
func (c *APIClient) Active() bool { return c.RevokedAt == nil }

// GenerateAPIKey creates a new lak_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := KeyPrefix + hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	return fullKey, string(hash), fullKey[:PrefixLen], nil
}

const clientColumns = `id, name, api_key_hash, api_key_prefix, revoked_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*APIClient, error) {
	var c APIClient
	var revoked sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.APIKeyHash, &c.APIKeyPrefix, &revoked, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if revoked.Valid {
		c.RevokedAt = &revoked.Time
	}
	return &c, nil
}

// CreateClient inserts a new client and returns it with the plaintext key,
// which is never stored.
func (s *Store) CreateClient(ctx context.Context, name string) (*APIClient, string, error) {
	fullKey, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateClient: %w", err)
	}

	c, err := scanClient(s.db.QueryRowContext(ctx, `
		INSERT INTO api_clients (name, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3)
		RETURNING `+clientColumns,
		name, hash, prefix,
	))
	if err != nil {
		return nil, "", fmt.Errorf("CreateClient: %w", err)
	}
	return c, fullKey, nil
}

// ListClients returns all clients, newest first.
func (s *Store) ListClients(ctx context.Context) ([]*APIClient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM api_clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListClients: %w", err)
	}
	defer rows.Close()

	var clients []*APIClient
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("ListClients: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// GetClient returns a client by ID.
func (s *Store) GetClient(ctx context.Context, id string) (*APIClient, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM api_clients WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetClient: %w", err)
	}
	return c, nil
}

// RevokeClient marks a client revoked. Revoking twice keeps the first time.
func (s *Store) RevokeClient(ctx context.Context, id string) (*APIClient, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `
		UPDATE api_clients SET
			revoked_at = COALESCE(revoked_at, now()),
			updated_at = now()
		WHERE id = $1
		RETURNING `+clientColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("RevokeClient: %w", err)
	}
	return c, nil
}

// RotateAPIKey issues a new key for an active client.
// Returns the updated client and the plaintext key (shown once).
func (s *Store) RotateAPIKey(ctx context.Context, id string) (*APIClient, string, error) {
	fullKey, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	c, err := scanClient(s.db.QueryRowContext(ctx, `
		UPDATE api_clients SET
			api_key_hash   = $2,
			api_key_prefix = $3,
			updated_at     = now()
		WHERE id = $1 AND revoked_at IS NULL
		RETURNING `+clientColumns,
		id, hash, prefix,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}
	return c, fullKey, nil
}

// LookupByPrefix finds the active client whose key starts with prefix.
// Used by auth to narrow candidates before bcrypt verify.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*APIClient, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+`
		FROM api_clients
		WHERE api_key_prefix = $1 AND revoked_at IS NULL`, prefix))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return c, nil
}
