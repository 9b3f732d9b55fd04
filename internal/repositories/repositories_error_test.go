package repositories

import (
	"errors"
	"testing"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/shared"
)

func TestUserRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewUserRepository(db)

			var verr *models.ValidationError
			if err := repo.Create(models.NewUser("", "Test User", "")); !errors.As(err, &verr) {
				t.Fatalf("expected validation error for empty spotify id, got %v", err)
			}
		})

		t.Run("DuplicateSpotifyID", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewUserRepository(db)

			if err := repo.Create(models.NewUser("spotify-1", "One", "")); err != nil {
				t.Fatalf("failed to create first user: %v", err)
			}

			err := repo.Create(models.NewUser("spotify-1", "Two", ""))
			if !isUniqueViolation(err) {
				t.Fatalf("expected unique violation, got %v", err)
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			if _, err := NewUserRepository(db).Get("nonexistent-id"); !errors.Is(err, shared.ErrUserNotFound) {
				t.Fatalf("expected ErrUserNotFound, got %v", err)
			}
		})
	})

	t.Run("Update", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			user := models.NewUser("spotify-1", "", "")
			user.SetID("nonexistent-id")

			if err := NewUserRepository(db).Update(user); !errors.Is(err, shared.ErrUserNotFound) {
				t.Fatalf("expected ErrUserNotFound, got %v", err)
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			if err := NewUserRepository(db).Delete("nonexistent-id"); !errors.Is(err, shared.ErrUserNotFound) {
				t.Fatalf("expected ErrUserNotFound, got %v", err)
			}
		})
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		db.Close()

		repo := NewUserRepository(db)
		if _, err := repo.List(map[string]any{}); err == nil {
			t.Error("expected error listing on closed database")
		}
		if err := repo.Create(models.NewUser("spotify-1", "", "")); err == nil {
			t.Error("expected error creating on closed database")
		}
	})
}

func TestTrackRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)
			if err := NewTrackRepository(db).Create(models.NewTrack(models.TrackInfo{SpotifyTrackID: "t1"})); err == nil {
				t.Fatal("expected validation error for empty name")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			if _, err := NewTrackRepository(db).GetBySpotifyID("missing"); !errors.Is(err, shared.ErrTrackNotFound) {
				t.Fatalf("expected ErrTrackNotFound, got %v", err)
			}
		})
	})

	t.Run("SetPreviewURL", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			if err := NewTrackRepository(db).SetPreviewURL("missing", "x"); !errors.Is(err, shared.ErrTrackNotFound) {
				t.Fatalf("expected ErrTrackNotFound, got %v", err)
			}
		})
	})
}

func TestTrackStateRepositoryErrors(t *testing.T) {
	t.Run("EnsurePending unknown track", func(t *testing.T) {
		db := setupTestDB(t)
		user := createUser(t, db, "u")
		if _, err := NewTrackStateRepository(db).EnsurePending(user.ID(), "missing-track"); err == nil {
			t.Fatal("expected foreign key error")
		}
	})

	t.Run("Get missing state", func(t *testing.T) {
		db := setupTestDB(t)
		if _, err := NewTrackStateRepository(db).Get("u", "t"); !errors.Is(err, shared.ErrTrackNotPending) {
			t.Fatalf("expected ErrTrackNotPending, got %v", err)
		}
	})
}
