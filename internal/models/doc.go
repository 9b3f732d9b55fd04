// Package models defines the persistent entities of cur8 and the repository contract used to store them.
//
//   - [User] : a connected Spotify account
//   - [Credential] : the user's Spotify access and refresh tokens, one per user
//   - [Track] : saved-track metadata cached from the Spotify library
//   - [TrackState] : a user's keep/remove decision for one track
//
// Entities keep their fields private and expose getters; repositories set generated IDs,
// sequences and timestamps through setters.
package models
