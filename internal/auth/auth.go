// Package auth implements the Spotify login lifecycle: PKCE authorization, session minting,
// and keeping each user's access token fresh.
//
// State is split between the ephemeral [store.Store] (PKCE bindings, sessions) and SQLite
// (users, credentials). Nothing is cached in process memory, so any number of server
// instances can serve the same user.
package auth

//go:generate mockgen -source=auth.go -destination=mock_auth_test.go -package=auth

import (
	"context"

	"github.com/desertthunder/cur8/internal/services"
)

// TokenRefresher performs the refresh_token grant.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenResponse, error)
}

// Provider is the upstream surface the login flow needs.
type Provider interface {
	AuthURL(state, challenge string) string
	ExchangeCode(ctx context.Context, code, verifier string) (*services.TokenResponse, error)
	UserProfile(ctx context.Context, accessToken string) (*services.SpotifyUser, error)
}

var (
	_ TokenRefresher = (*services.SpotifyService)(nil)
	_ Provider       = (*services.SpotifyService)(nil)
)
