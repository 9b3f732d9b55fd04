package services

import (
	"context"
	"encoding/json"
	"time"
)

// TokenClient performs the OAuth token-endpoint grants.
type TokenClient interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// LibraryClient is the Web API surface used for a connected user's library.
type LibraryClient interface {
	UserProfile(ctx context.Context, accessToken string) (*SpotifyUser, error)
	SavedTracks(ctx context.Context, accessToken string, limit, offset int) (*SpotifyPaginatedTracks, error)
	SavedTracksRaw(ctx context.Context, accessToken string, limit, offset int) (json.RawMessage, error)
	Track(ctx context.Context, accessToken, trackID string) (*SpotifyTrack, error)
	RemoveSavedTracks(ctx context.Context, accessToken string, trackIDs ...string) error
}

var (
	_ TokenClient   = (*SpotifyService)(nil)
	_ LibraryClient = (*SpotifyService)(nil)
)

// DefaultExpiresIn applies when the token endpoint omits expires_in.
const DefaultExpiresIn = 3600

// TokenResponse is the result of a successful token grant.
//
// RefreshToken is empty when Spotify did not issue a new one.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresIn    int
}

// ExpiresAt converts ExpiresIn to an absolute time relative to now.
func (t *TokenResponse) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}
