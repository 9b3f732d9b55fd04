package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/shared"
)

const trackColumns = `t.id, t.sequence, t.spotify_track_id, t.name, t.artists, t.album_name, t.artwork_url,
	t.preview_url, t.duration_ms, t.created_at, t.updated_at`

// TrackRepository implements [models.Repository] for cached Spotify track metadata.
type TrackRepository struct {
	db Querier
}

// NewTrackRepository creates a new [TrackRepository] over a database or transaction.
func NewTrackRepository(db Querier) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts a new [models.Track] with a generated ID and sequence.
func (r *TrackRepository) Create(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	query := `
		INSERT INTO tracks (id, sequence, spotify_track_id, name, artists, album_name, artwork_url, preview_url,
			duration_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		id,
		sequence,
		track.SpotifyTrackID(),
		track.Name(),
		nullString(track.Artists()),
		nullString(track.AlbumName()),
		nullString(track.ArtworkURL()),
		nullString(track.PreviewURL()),
		nullInt(track.DurationMS()),
		track.CreatedAt(),
		track.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	track.SetID(id)
	track.SetSequence(sequence)
	return nil
}

// Get retrieves a track by ID.
func (r *TrackRepository) Get(id string) (*models.Track, error) {
	return r.scanOne(r.db.QueryRow("SELECT "+trackColumns+" FROM tracks t WHERE t.id = ?", id))
}

// GetBySpotifyID retrieves a track by its Spotify track ID.
func (r *TrackRepository) GetBySpotifyID(spotifyTrackID string) (*models.Track, error) {
	return r.scanOne(r.db.QueryRow("SELECT "+trackColumns+" FROM tracks t WHERE t.spotify_track_id = ?", spotifyTrackID))
}

// Upsert creates the track from info or refreshes the cached metadata of an existing one.
func (r *TrackRepository) Upsert(info models.TrackInfo) (*models.Track, error) {
	existing, err := r.GetBySpotifyID(info.SpotifyTrackID)
	switch {
	case errors.Is(err, shared.ErrTrackNotFound):
		track := models.NewTrack(info)
		err := r.Create(track)
		if isUniqueViolation(err) {
			// Another sync inserted it first.
			return r.GetBySpotifyID(info.SpotifyTrackID)
		}
		if err != nil {
			return nil, err
		}
		return track, nil
	case err != nil:
		return nil, err
	}

	existing.Apply(info)
	if err := r.Update(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Update modifies an existing track's metadata.
func (r *TrackRepository) Update(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := utcNow()
	query := `
		UPDATE tracks
		SET name = ?, artists = ?, album_name = ?, artwork_url = ?, preview_url = ?, duration_ms = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		track.Name(),
		nullString(track.Artists()),
		nullString(track.AlbumName()),
		nullString(track.ArtworkURL()),
		nullString(track.PreviewURL()),
		nullInt(track.DurationMS()),
		now,
		track.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}
	if err := requireAffected(result, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, track.ID())); err != nil {
		return err
	}

	track.SetUpdatedAt(now)
	return nil
}

// SetPreviewURL stores a preview URL found after the track was cached.
func (r *TrackRepository) SetPreviewURL(id, previewURL string) error {
	result, err := r.db.Exec("UPDATE tracks SET preview_url = ?, updated_at = ? WHERE id = ?",
		nullString(previewURL), utcNow(), id)
	if err != nil {
		return fmt.Errorf("failed to update preview url: %w", err)
	}
	return requireAffected(result, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id))
}

// Delete removes a track and every user's state for it.
func (r *TrackRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM tracks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	return requireAffected(result, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id))
}

// List retrieves tracks ordered by sequence. Supported criteria: "spotify_track_id", "name".
func (r *TrackRepository) List(criteria map[string]any) ([]*models.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks t WHERE 1 = 1"
	args := []any{}

	if sid, ok := criteria["spotify_track_id"].(string); ok && sid != "" {
		query += " AND t.spotify_track_id = ?"
		args = append(args, sid)
	}
	if name, ok := criteria["name"].(string); ok && name != "" {
		query += " AND t.name = ?"
		args = append(args, name)
	}
	query += " ORDER BY t.sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

func (r *TrackRepository) scanOne(row *sql.Row) (*models.Track, error) {
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTrackNotFound
	}
	return track, err
}

// scanTrack reads trackColumns plus any extra destinations appended by the caller.
func scanTrack(s scanner, extra ...any) (*models.Track, error) {
	var (
		id, spotifyTrackID, name         string
		sequence                         int
		artists, album, artwork, preview sql.NullString
		duration                         sql.NullInt64
		createdAt, updatedAt             time.Time
	)

	dest := append([]any{&id, &sequence, &spotifyTrackID, &name, &artists, &album, &artwork, &preview,
		&duration, &createdAt, &updatedAt}, extra...)
	if err := s.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	track := models.NewTrack(models.TrackInfo{
		SpotifyTrackID: spotifyTrackID,
		Name:           name,
		Artists:        artists.String,
		AlbumName:      album.String,
		ArtworkURL:     artwork.String,
		PreviewURL:     preview.String,
		DurationMS:     int(duration.Int64),
	})
	track.SetID(id)
	track.SetSequence(sequence)
	track.SetCreatedAt(createdAt)
	track.SetUpdatedAt(updatedAt)
	return track, nil
}
