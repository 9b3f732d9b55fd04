package models

// User is a Spotify account that has completed the authorization flow.
//
// SpotifyUserID is unique; logging in again with the same account updates the existing row.
type User struct {
	base
	spotifyUserID string
	displayName   string
	avatarURL     string
}

// NewUser creates a [User] for the given Spotify profile. Empty displayName/avatarURL are stored as NULL.
func NewUser(spotifyUserID, displayName, avatarURL string) *User {
	return &User{
		base:          newBase(),
		spotifyUserID: spotifyUserID,
		displayName:   displayName,
		avatarURL:     avatarURL,
	}
}

func (u *User) SpotifyUserID() string { return u.spotifyUserID }
func (u *User) DisplayName() string   { return u.displayName }
func (u *User) AvatarURL() string     { return u.avatarURL }

// SetProfile replaces the profile fields that Spotify may change between logins.
func (u *User) SetProfile(displayName, avatarURL string) {
	u.displayName = displayName
	u.avatarURL = avatarURL
}

func (u *User) Validate() error {
	if u.spotifyUserID == "" {
		return &ValidationError{Model: "user", Field: "spotify_user_id"}
	}
	return nil
}
