package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
)

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("auth backend unavailable")
)

// Principal is the authenticated caller of the task surface.
type Principal struct {
	ClientID string
	Name     string
	Source   string // "static" or "postgres"
}

// Authenticator validates an API key and returns the caller.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*Principal, error)
}

// BearerToken extracts the key from an Authorization header value.
func BearerToken(header string) (string, error) {
	token := strings.TrimSpace(header)
	if token == "" {
		return "", ErrMissingAPIKey
	}
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if scheme, rest, found := strings.Cut(token, " "); found && strings.EqualFold(scheme, "bearer") {
		token = strings.TrimSpace(rest)
	}
	if token == "" || strings.EqualFold(token, "bearer") {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

// StaticAuthenticator accepts a fixed set of keys from configuration.
type StaticAuthenticator struct {
	keys [][]byte
}

func NewStaticAuthenticator(keys []string) *StaticAuthenticator {
	a := &StaticAuthenticator{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	return a
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, apiKey string) (*Principal, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	candidate := []byte(apiKey)
	for i, k := range a.keys {
		if subtle.ConstantTimeCompare(candidate, k) == 1 {
			return &Principal{ClientID: "static-" + strconv.Itoa(i), Name: "static", Source: "static"}, nil
		}
	}
	return nil, ErrInvalidAPIKey
}
