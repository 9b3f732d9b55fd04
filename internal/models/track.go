package models

import (
	"fmt"
	"time"
)

// Track is saved-track metadata cached from Spotify, shared by every user who saved it.
type Track struct {
	base
	spotifyTrackID string
	name           string
	artists        string
	albumName      string
	artworkURL     string
	previewURL     string
	durationMS     int
}

// TrackInfo is the Spotify-side description of a track used to create or refresh a [Track].
type TrackInfo struct {
	SpotifyTrackID string
	Name           string
	Artists        string // comma-separated display names
	AlbumName      string
	ArtworkURL     string
	PreviewURL     string
	DurationMS     int
}

// NewTrack creates a [Track] from info.
func NewTrack(info TrackInfo) *Track {
	t := &Track{base: newBase()}
	t.Apply(info)
	return t
}

func (t *Track) SpotifyTrackID() string { return t.spotifyTrackID }
func (t *Track) Name() string           { return t.name }
func (t *Track) Artists() string        { return t.artists }
func (t *Track) AlbumName() string      { return t.albumName }
func (t *Track) ArtworkURL() string     { return t.artworkURL }
func (t *Track) PreviewURL() string     { return t.previewURL }
func (t *Track) DurationMS() int        { return t.durationMS }

// Duration formats the track length as m:ss.
func (t *Track) Duration() string {
	d := time.Duration(t.durationMS) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func (t *Track) SetPreviewURL(url string) { t.previewURL = url }

// Apply overwrites the metadata with info. A blank preview URL keeps the current one,
// because Spotify omits previews from some responses.
func (t *Track) Apply(info TrackInfo) {
	t.spotifyTrackID = info.SpotifyTrackID
	t.name = info.Name
	t.artists = info.Artists
	t.albumName = info.AlbumName
	t.artworkURL = info.ArtworkURL
	if info.PreviewURL != "" {
		t.previewURL = info.PreviewURL
	}
	t.durationMS = info.DurationMS
}

func (t *Track) Validate() error {
	if t.spotifyTrackID == "" {
		return &ValidationError{Model: "track", Field: "spotify_track_id"}
	}
	if t.name == "" {
		return &ValidationError{Model: "track", Field: "name"}
	}
	return nil
}
