package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/repositories"
	"github.com/desertthunder/cur8/internal/shared"
)

const (
	// RefreshBuffer is how close to expiry an access token may get before it is refreshed.
	RefreshBuffer = 60 * time.Second
	// DefaultRefreshTimeout bounds a shared refresh once it no longer follows any caller's context.
	DefaultRefreshTimeout = 10 * time.Second
)

// CredentialManager hands out valid Spotify access tokens for stored users.
//
// Refreshes for the same user are collapsed within this process. Separate processes may each
// refresh; the last write wins.
type CredentialManager struct {
	db        *sql.DB
	refresher TokenRefresher
	group     singleflight.Group
	timeout   time.Duration
	now       func() time.Time
	logger    *log.Logger
}

// NewCredentialManager creates a manager that persists refreshed credentials to db.
func NewCredentialManager(db *sql.DB, refresher TokenRefresher, logger *log.Logger) *CredentialManager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &CredentialManager{
		db:        db,
		refresher: refresher,
		timeout:   DefaultRefreshTimeout,
		now:       time.Now,
		logger:    shared.WithLogger(logger, "component", "credentials"),
	}
}

// WithClock replaces the time source.
func (m *CredentialManager) WithClock(now func() time.Time) *CredentialManager {
	m.now = now
	return m
}

// WithRefreshTimeout bounds each shared refresh. Non-positive values are ignored.
func (m *CredentialManager) WithRefreshTimeout(d time.Duration) *CredentialManager {
	if d > 0 {
		m.timeout = d
	}
	return m
}

// AccessToken returns a usable access token for userID, refreshing it first when it
// expires within [RefreshBuffer].
//
// Concurrent callers for one user share a single lookup. The shared work is detached from every
// caller's cancellation so a refresh Spotify may already have applied is always persisted; a
// canceled caller stops waiting and gets its own ctx error.
func (m *CredentialManager) AccessToken(ctx context.Context, userID string) (string, error) {
	ch := m.group.DoChan(userID, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return m.currentToken(rctx, userID)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *CredentialManager) currentToken(ctx context.Context, userID string) (string, error) {
	cred, err := repositories.NewCredentialRepository(m.db).Get(userID)
	if errors.Is(err, shared.ErrCredentialNotFound) {
		return "", newError(KindMissingCredential, err)
	}
	if err != nil {
		return "", err
	}

	if !cred.ExpiresWithin(RefreshBuffer, m.now()) {
		return cred.AccessToken(), nil
	}
	return m.Refresh(ctx, cred)
}

// Refresh exchanges the credential's refresh token and persists the result before returning
// the new access token. A rotated refresh token replaces the stored one.
func (m *CredentialManager) Refresh(ctx context.Context, cred *models.Credential) (string, error) {
	tok, err := m.refresher.RefreshToken(ctx, cred.RefreshToken())
	if err != nil {
		m.logger.Warn("refresh failed", "user_id", cred.UserID(), "error", err)
		if errors.Is(err, shared.ErrUpstreamRejected) || errors.Is(err, shared.ErrMissingArgument) {
			return "", newError(KindRefreshFailed, err)
		}
		return "", err
	}

	rotated := tok.RefreshToken != ""
	cred.Rotate(tok.AccessToken, tok.RefreshToken, tok.Scope, tok.ExpiresAt(m.now()))
	if err := repositories.NewCredentialRepository(m.db).Save(cred); err != nil {
		return "", fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	m.logger.Debug("access token refreshed", "user_id", cred.UserID(), "rotated", rotated,
		"expires_at", cred.ExpiresAt().Format(time.RFC3339))
	return cred.AccessToken(), nil
}
