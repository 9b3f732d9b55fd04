package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/repositories"
	"github.com/desertthunder/cur8/internal/shared"
	"github.com/desertthunder/cur8/internal/store"
)

// Flow drives login: authorization URL, callback, session resolution and logout.
type Flow struct {
	provider Provider
	db       *sql.DB
	bindings *store.Bindings
	sessions *store.Sessions
	now      func() time.Time
	logger   *log.Logger
}

// NewFlow wires the login flow to Spotify, SQLite and the ephemeral store.
func NewFlow(provider Provider, db *sql.DB, st store.Store, logger *log.Logger) *Flow {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Flow{
		provider: provider,
		db:       db,
		bindings: store.NewBindings(st),
		sessions: store.NewSessions(st),
		now:      time.Now,
		logger:   shared.WithLogger(logger, "component", "auth"),
	}
}

// SessionTTL is the lifetime of sessions minted by [Flow.Callback].
func (f *Flow) SessionTTL() time.Duration { return f.sessions.TTL() }

// Login starts an authorization attempt and returns the Spotify consent URL.
// The PKCE verifier stays server-side, bound to the returned URL's state.
func (f *Flow) Login(ctx context.Context) (string, error) {
	verifier := GenerateVerifier()
	state := GenerateState()

	if err := f.bindings.Save(ctx, state, verifier); err != nil {
		return "", fmt.Errorf("failed to save pkce binding: %w", err)
	}
	return f.provider.AuthURL(state, DeriveChallenge(verifier)), nil
}

// Callback completes an authorization attempt and returns a new session ID.
//
// The state is consumed before anything else, so a replayed or forged callback fails
// with [ErrInvalidOrExpiredState] and a code can be redeemed at most once.
func (f *Flow) Callback(ctx context.Context, code, state string) (string, error) {
	verifier, err := f.bindings.Consume(ctx, state)
	if errors.Is(err, store.ErrNotFound) {
		return "", newError(KindInvalidOrExpiredState, err)
	}
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", newError(KindUpstreamTokenExchangeFailed, fmt.Errorf("%w: code", shared.ErrMissingArgument))
	}

	tok, err := f.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return "", newError(KindUpstreamTokenExchangeFailed, err)
	}
	if tok.RefreshToken == "" {
		f.logger.Error("token response carried no refresh token")
		return "", newError(KindNoRefreshToken, nil)
	}

	profile, err := f.provider.UserProfile(ctx, tok.AccessToken)
	if err != nil {
		return "", newError(KindUpstreamProfileFetchFailed, err)
	}

	user := models.NewUser(profile.ID, profile.DisplayName, profile.AvatarURL())
	err = repositories.WithTx(ctx, f.db, func(tx *sql.Tx) error {
		if err := repositories.NewUserRepository(tx).Upsert(user); err != nil {
			return err
		}
		cred := models.NewCredential(user.ID(), tok.AccessToken, tok.RefreshToken, tok.Scope, tok.ExpiresAt(f.now()))
		return repositories.NewCredentialRepository(tx).Save(cred)
	})
	if err != nil {
		return "", fmt.Errorf("failed to store login: %w", err)
	}

	sessionID, err := f.sessions.Create(ctx, user.ID())
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	f.logger.Info("user logged in", "user_id", user.ID(), "spotify_user_id", profile.ID)
	return sessionID, nil
}

// ResolveSession returns the user ID bound to sessionID.
func (f *Flow) ResolveSession(ctx context.Context, sessionID string) (string, error) {
	userID, err := f.sessions.Resolve(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return "", newError(KindUnauthenticated, err)
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// CurrentUser resolves sessionID to its stored user. A session whose user was deleted is unauthenticated.
func (f *Flow) CurrentUser(ctx context.Context, sessionID string) (*models.User, error) {
	userID, err := f.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user, err := repositories.NewUserRepository(f.db).Get(userID)
	if errors.Is(err, shared.ErrUserNotFound) {
		return nil, newError(KindUnauthenticated, err)
	}
	return user, err
}

// Logout ends the session. It succeeds when there is no session to end.
func (f *Flow) Logout(ctx context.Context, sessionID string) error {
	if err := f.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
