package auth

import (
	"context"
	"errors"
	"testing"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"bearer", "Bearer lak_abc", "lak_abc", nil},
		{"lowercase scheme", "bearer lak_abc", "lak_abc", nil},
		{"bare key", "lak_abc", "lak_abc", nil},
		{"whitespace", "  Bearer   lak_abc  ", "lak_abc", nil},
		{"empty", "", "", ErrMissingAPIKey},
		{"scheme only", "Bearer ", "", ErrMissingAPIKey},
		{"scheme only lowercase", "bearer", "", ErrMissingAPIKey},
		{"scheme with tab padding", "Bearer \t ", "", ErrMissingAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BearerToken(tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator([]string{"key-one", " ", "key-two"})
	ctx := context.Background()

	tests := []struct {
		name    string
		key     string
		wantID  string
		wantErr error
	}{
		{"first key", "key-one", "static-0", nil},
		{"second key", "key-two", "static-1", nil},
		{"unknown key", "key-three", "", ErrInvalidAPIKey},
		{"prefix of a key", "key-", "", ErrInvalidAPIKey},
		{"empty", "", "", ErrMissingAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := a.Authenticate(ctx, tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && (p.ClientID != tt.wantID || p.Source != "static") {
				t.Errorf("principal = %+v, want id %s", p, tt.wantID)
			}
		})
	}
}
