package models

import "time"

// Credential holds a user's Spotify tokens. There is at most one per user and it always has a refresh token.
type Credential struct {
	userID       string
	accessToken  string
	refreshToken string
	scope        string
	expiresAt    time.Time
	createdAt    time.Time
	updatedAt    time.Time
}

// NewCredential creates a [Credential] for userID.
func NewCredential(userID, accessToken, refreshToken, scope string, expiresAt time.Time) *Credential {
	now := time.Now().UTC()
	return &Credential{
		userID:       userID,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		scope:        scope,
		expiresAt:    expiresAt.UTC(),
		createdAt:    now,
		updatedAt:    now,
	}
}

// ID returns the owning user's ID; credentials are keyed by user.
func (c *Credential) ID() string               { return c.userID }
func (c *Credential) UserID() string           { return c.userID }
func (c *Credential) AccessToken() string      { return c.accessToken }
func (c *Credential) RefreshToken() string     { return c.refreshToken }
func (c *Credential) Scope() string            { return c.scope }
func (c *Credential) ExpiresAt() time.Time     { return c.expiresAt }
func (c *Credential) CreatedAt() time.Time     { return c.createdAt }
func (c *Credential) UpdatedAt() time.Time     { return c.updatedAt }
func (c *Credential) SetUserID(id string)      { c.userID = id }
func (c *Credential) SetCreatedAt(t time.Time) { c.createdAt = t }
func (c *Credential) SetUpdatedAt(t time.Time) { c.updatedAt = t }

// Rotate stores the result of a token refresh.
// An empty refreshToken keeps the current one, since Spotify does not always issue a new one.
func (c *Credential) Rotate(accessToken, refreshToken, scope string, expiresAt time.Time) {
	c.accessToken = accessToken
	if refreshToken != "" {
		c.refreshToken = refreshToken
	}
	if scope != "" {
		c.scope = scope
	}
	c.expiresAt = expiresAt.UTC()
}

// ExpiresWithin reports whether the access token expires within d of now.
func (c *Credential) ExpiresWithin(d time.Duration, now time.Time) bool {
	return c.expiresAt.Sub(now) <= d
}

func (c *Credential) Validate() error {
	switch {
	case c.userID == "":
		return &ValidationError{Model: "credential", Field: "user_id"}
	case c.accessToken == "":
		return &ValidationError{Model: "credential", Field: "access_token"}
	case c.refreshToken == "":
		return &ValidationError{Model: "credential", Field: "refresh_token"}
	case c.expiresAt.IsZero():
		return &ValidationError{Model: "credential", Field: "expires_at"}
	}
	return nil
}
