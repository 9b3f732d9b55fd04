package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/shared"
)

// CredentialRepository persists the single Spotify [models.Credential] each user may hold.
type CredentialRepository struct {
	db Querier
}

// NewCredentialRepository creates a new [CredentialRepository] over a database or transaction.
func NewCredentialRepository(db Querier) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Get returns the credential for userID or [shared.ErrCredentialNotFound].
func (r *CredentialRepository) Get(userID string) (*models.Credential, error) {
	query := `
		SELECT user_id, access_token, refresh_token, scope, expires_at, created_at, updated_at
		FROM credentials
		WHERE user_id = ?
	`

	var (
		uid, access, refresh string
		scope                sql.NullString
		expiresAt            time.Time
		createdAt, updatedAt time.Time
	)
	err := r.db.QueryRow(query, userID).Scan(&uid, &access, &refresh, &scope, &expiresAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}

	cred := models.NewCredential(uid, access, refresh, scope.String, expiresAt)
	cred.SetCreatedAt(createdAt)
	cred.SetUpdatedAt(updatedAt)
	return cred, nil
}

// Save inserts the credential or replaces the user's existing one.
func (r *CredentialRepository) Save(cred *models.Credential) error {
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := utcNow()
	query := `
		INSERT INTO credentials (user_id, access_token, refresh_token, scope, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			scope = excluded.scope,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err := r.db.Exec(query, cred.UserID(), cred.AccessToken(), cred.RefreshToken(), nullString(cred.Scope()),
		cred.ExpiresAt(), cred.CreatedAt(), now)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	cred.SetUpdatedAt(now)
	return nil
}

// Delete removes the user's credential.
func (r *CredentialRepository) Delete(userID string) error {
	result, err := r.db.Exec("DELETE FROM credentials WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return requireAffected(result, shared.ErrCredentialNotFound)
}
