package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/shared"
)

const userColumns = "id, sequence, spotify_user_id, display_name, avatar_url, created_at, updated_at"

// UserRepository implements [models.Repository] for [models.User] persistence.
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new [UserRepository] over a database or transaction.
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user with a generated ID and sequence.
func (r *UserRepository) Create(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "users")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	query := `
		INSERT INTO users (id, sequence, spotify_user_id, display_name, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, id, sequence, user.SpotifyUserID(), nullString(user.DisplayName()),
		nullString(user.AvatarURL()), user.CreatedAt(), user.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	user.SetID(id)
	user.SetSequence(sequence)
	return nil
}

// Get retrieves a user by ID.
func (r *UserRepository) Get(id string) (*models.User, error) {
	return r.scanOne(r.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetBySpotifyID retrieves a user by their Spotify account ID.
func (r *UserRepository) GetBySpotifyID(spotifyUserID string) (*models.User, error) {
	return r.scanOne(r.db.QueryRow("SELECT "+userColumns+" FROM users WHERE spotify_user_id = ?", spotifyUserID))
}

// Upsert creates the user or, when the Spotify account is already known, refreshes its profile.
// On return user carries the persisted ID.
func (r *UserRepository) Upsert(user *models.User) error {
	existing, err := r.GetBySpotifyID(user.SpotifyUserID())
	switch {
	case errors.Is(err, shared.ErrUserNotFound):
		return r.Create(user)
	case err != nil:
		return err
	}

	existing.SetProfile(user.DisplayName(), user.AvatarURL())
	if err := r.Update(existing); err != nil {
		return err
	}

	user.SetID(existing.ID())
	user.SetSequence(existing.Sequence())
	user.SetCreatedAt(existing.CreatedAt())
	user.SetUpdatedAt(existing.UpdatedAt())
	return nil
}

// Update modifies an existing user's profile.
func (r *UserRepository) Update(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := utcNow()
	result, err := r.db.Exec(`UPDATE users SET display_name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		nullString(user.DisplayName()), nullString(user.AvatarURL()), now, user.ID())
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if err := requireAffected(result, fmt.Errorf("%w: %s", shared.ErrUserNotFound, user.ID())); err != nil {
		return err
	}

	user.SetUpdatedAt(now)
	return nil
}

// Delete removes a user; credentials and track states cascade.
func (r *UserRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result, fmt.Errorf("%w: %s", shared.ErrUserNotFound, id))
}

// List retrieves users ordered by sequence. Supported criteria: "spotify_user_id".
func (r *UserRepository) List(criteria map[string]any) ([]*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE 1 = 1"
	args := []any{}

	if sid, ok := criteria["spotify_user_id"].(string); ok && sid != "" {
		query += " AND spotify_user_id = ?"
		args = append(args, sid)
	}
	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return users, nil
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrUserNotFound
	}
	return user, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*models.User, error) {
	var (
		id, spotifyUserID    string
		sequence             int
		displayName, avatar  sql.NullString
		createdAt, updatedAt time.Time
	)

	if err := s.Scan(&id, &sequence, &spotifyUserID, &displayName, &avatar, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user := models.NewUser(spotifyUserID, displayName.String, avatar.String)
	user.SetID(id)
	user.SetSequence(sequence)
	user.SetCreatedAt(createdAt)
	user.SetUpdatedAt(updatedAt)
	return user, nil
}
