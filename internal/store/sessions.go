package store

import (
	"context"
	"time"

	"github.com/desertthunder/cur8/internal/shared"
)

const (
	// BindingTTL bounds how long a user may take on the Spotify consent page.
	BindingTTL = 10 * time.Minute
	// SessionTTL is the lifetime of a login session and its cookie.
	SessionTTL = 7 * 24 * time.Hour

	sessionIDBytes = 32
)

// Sessions maps opaque session IDs to user IDs.
type Sessions struct {
	store Store
	ttl   time.Duration
}

// NewSessions creates a [Sessions] with the default [SessionTTL].
func NewSessions(s Store) *Sessions {
	return &Sessions{store: s, ttl: SessionTTL}
}

// TTL returns the session lifetime.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Create starts a session for userID and returns its 256-bit, URL-safe ID.
func (s *Sessions) Create(ctx context.Context, userID string) (string, error) {
	id := shared.RandomToken(sessionIDBytes)
	if err := s.store.Put(ctx, NamespaceSession, id, userID, s.ttl); err != nil {
		return "", err
	}
	return id, nil
}

// Resolve returns the user ID for a live session or [ErrNotFound].
func (s *Sessions) Resolve(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrNotFound
	}
	return s.store.Get(ctx, NamespaceSession, id)
}

// Revoke ends the session. Revoking an unknown or expired session is not an error.
func (s *Sessions) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.store.Delete(ctx, NamespaceSession, id)
}

// Bindings ties an OAuth state to its PKCE code verifier between login and callback.
type Bindings struct {
	store Store
	ttl   time.Duration
}

// NewBindings creates a [Bindings] with the default [BindingTTL].
func NewBindings(s Store) *Bindings {
	return &Bindings{store: s, ttl: BindingTTL}
}

// Save records the verifier for state.
func (b *Bindings) Save(ctx context.Context, state, verifier string) error {
	return b.store.Put(ctx, NamespacePKCE, state, verifier, b.ttl)
}

// Consume returns and deletes the verifier for state. A second call for the same state yields [ErrNotFound].
func (b *Bindings) Consume(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrNotFound
	}
	return b.store.Take(ctx, NamespacePKCE, state)
}
