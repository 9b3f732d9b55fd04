package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/repositories"
	"github.com/desertthunder/cur8/internal/services"
	"github.com/desertthunder/cur8/internal/shared"
	tu "github.com/desertthunder/cur8/internal/testing"
)

// staticTokens hands out a fixed token, or err when set.
type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) AccessToken(context.Context, string) (string, error) {
	s.calls++
	return s.token, s.err
}

type fixture struct {
	db     *sql.DB
	fake   *tu.FakeSpotify
	tokens *staticTokens
	engine *LibraryEngine
	userID string
}

func setupEngine(t *testing.T, opts Options) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	user := models.NewUser("spotify-user", "Listener", "")
	if err := repositories.NewUserRepository(db).Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	fake := tu.NewFakeSpotify(t)
	logger := shared.NewLogger(io.Discard)
	spotify, err := services.NewSpotifyService(fake.Config(), logger)
	if err != nil {
		t.Fatalf("failed to create spotify service: %v", err)
	}

	if opts.PagesPerSecond == 0 {
		opts.PagesPerSecond = 1000
	}
	tokens := &staticTokens{token: "access"}
	return &fixture{
		db:     db,
		fake:   fake,
		tokens: tokens,
		engine: NewLibraryEngine(db, tokens, spotify, opts, logger),
		userID: user.ID(),
	}
}

func (f *fixture) addTracks(n int) {
	for i := 1; i <= n; i++ {
		preview := ""
		if i%2 == 1 {
			preview = fmt.Sprintf("https://p.scdn.co/mp3-preview/t%d", i)
		}
		f.fake.AddSavedTrack(fmt.Sprintf("t%d", i), fmt.Sprintf("Song %d", i), "Artist", preview)
	}
}

func drain(ch chan ProgressUpdate) []ProgressUpdate {
	close(ch)
	var updates []ProgressUpdate
	for u := range ch {
		updates = append(updates, u)
	}
	return updates
}

func TestNewLibraryEngine(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		e := NewLibraryEngine(nil, nil, nil, Options{}, nil)
		if e.opts.PageSize != DefaultPageSize || e.opts.PagesPerSecond != DefaultPagesPerSecond || e.opts.Workers != DefaultWorkers {
			t.Errorf("unexpected defaults: %+v", e.opts)
		}
	})

	t.Run("clamps limits", func(t *testing.T) {
		e := NewLibraryEngine(nil, nil, nil, Options{PageSize: 500, Workers: 50}, nil)
		if e.opts.PageSize != 50 || e.opts.Workers != 10 {
			t.Errorf("expected clamped options, got %+v", e.opts)
		}
	})
}

func TestSync(t *testing.T) {
	ctx := context.Background()

	t.Run("pages through the library", func(t *testing.T) {
		f := setupEngine(t, Options{PageSize: 2})
		f.addTracks(5)

		progress := make(chan ProgressUpdate, 64)
		result, err := f.engine.Sync(ctx, f.userID, progress)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Pages != 3 || result.Seen != 5 || result.Queued != 5 {
			t.Errorf("unexpected result: %+v", result)
		}

		f.fake.Lock()
		sizes := append([]int(nil), f.fake.PageSizes...)
		f.fake.Unlock()
		if len(sizes) != 3 || sizes[0] != 2 {
			t.Errorf("expected three requests of 2, got %v", sizes)
		}

		counts, err := f.engine.Counts(f.userID)
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if counts[models.Pending] != 5 {
			t.Errorf("expected 5 pending, got %d", counts[models.Pending])
		}

		updates := drain(progress)
		last := updates[len(updates)-1]
		if last.Phase != Complete || !strings.Contains(last.Message, "5 newly queued") {
			t.Errorf("unexpected final update: %+v", last)
		}
	})

	t.Run("stores track metadata", func(t *testing.T) {
		f := setupEngine(t, Options{})
		f.addTracks(1)

		if _, err := f.engine.Sync(ctx, f.userID, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		track, err := repositories.NewTrackRepository(f.db).GetBySpotifyID("t1")
		if err != nil {
			t.Fatalf("expected track stored, got %v", err)
		}
		if track.Name() != "Song 1" || track.Artists() != "Artist" || track.AlbumName() != "Album Song 1" {
			t.Errorf("unexpected metadata: %s / %s / %s", track.Name(), track.Artists(), track.AlbumName())
		}
		if track.ArtworkURL() != "https://i.scdn.co/image/t1" || track.DurationMS() != 200000 {
			t.Errorf("unexpected artwork or duration: %s %d", track.ArtworkURL(), track.DurationMS())
		}
		if track.PreviewURL() != "https://p.scdn.co/mp3-preview/t1" {
			t.Errorf("unexpected preview: %s", track.PreviewURL())
		}
	})

	t.Run("resync keeps decisions", func(t *testing.T) {
		f := setupEngine(t, Options{})
		f.addTracks(3)

		if _, err := f.engine.Sync(ctx, f.userID, nil); err != nil {
			t.Fatalf("first sync failed: %v", err)
		}
		if err := f.engine.Swipe(ctx, f.userID, "t2", models.Kept); err != nil {
			t.Fatalf("swipe failed: %v", err)
		}

		result, err := f.engine.Sync(ctx, f.userID, nil)
		if err != nil {
			t.Fatalf("second sync failed: %v", err)
		}
		if result.Queued != 0 || result.Seen != 3 {
			t.Errorf("expected nothing newly queued, got %+v", result)
		}

		counts, _ := f.engine.Counts(f.userID)
		if counts[models.Kept] != 1 || counts[models.Pending] != 2 {
			t.Errorf("decision lost on resync: %v", counts)
		}
	})

	t.Run("empty library", func(t *testing.T) {
		f := setupEngine(t, Options{})
		result, err := f.engine.Sync(ctx, f.userID, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Pages != 1 || result.Seen != 0 {
			t.Errorf("unexpected result: %+v", result)
		}
	})

	t.Run("token failure", func(t *testing.T) {
		f := setupEngine(t, Options{})
		f.tokens.err = shared.ErrCredentialNotFound

		if _, err := f.engine.Sync(ctx, f.userID, nil); !errors.Is(err, shared.ErrCredentialNotFound) {
			t.Errorf("expected token error, got %v", err)
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		f := setupEngine(t, Options{})
		f.fake.APIStatus = http.StatusTooManyRequests

		if _, err := f.engine.Sync(ctx, f.userID, nil); !errors.Is(err, shared.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		f := setupEngine(t, Options{})
		f.addTracks(1)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := f.engine.Sync(cctx, f.userID, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestNext(t *testing.T) {
	ctx := context.Background()

	t.Run("syncs when queue is empty", func(t *testing.T) {
		f := setupEngine(t, Options{})
		f.addTracks(1)

		track, err := f.engine.Next(ctx, f.userID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if track == nil || track.SpotifyTrackID() != "t1" {
			t.Fatalf("expected t1, got %v", track)
		}
	})

	t.Run("exhausted queue returns nil", func(t *testing.T) {
		f := setupEngine(t, Options{})
		f.addTracks(1)

		if _, err := f.engine.Next(ctx, f.userID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := f.engine.Swipe(ctx, f.userID, "t1", models.Kept); err != nil {
			t.Fatalf("swipe failed: %v", err)
		}

		track, err := f.engine.Next(ctx, f.userID)
		if err != nil || track != nil {
			t.Errorf("expected nil track and no error, got %v, %v", track, err)
		}
	})

	t.Run("backfills missing preview", func(t *testing.T) {
		f := setupEngine(t, Options{})
		f.fake.AddSavedTrack("t2", "Song 2", "Artist", "")
		f.fake.SetTrackPreview("t2", "https://p.scdn.co/mp3-preview/full")

		track, err := f.engine.Next(ctx, f.userID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if track.PreviewURL() != "https://p.scdn.co/mp3-preview/full" {
			t.Errorf("expected backfilled preview, got %q", track.PreviewURL())
		}

		stored, _ := repositories.NewTrackRepository(f.db).GetBySpotifyID("t2")
		if stored.PreviewURL() != "https://p.scdn.co/mp3-preview/full" {
			t.Errorf("preview not persisted, got %q", stored.PreviewURL())
		}
	})

	t.Run("preview lookup failure is ignored", func(t *testing.T) {
		f := setupEngine(t, Options{})
		f.fake.AddSavedTrack("t2", "Song 2", "Artist", "")
		f.fake.TrackStatus = http.StatusBadGateway

		track, err := f.engine.Next(ctx, f.userID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if track == nil || track.PreviewURL() != "" {
			t.Errorf("expected track without preview, got %v", track)
		}
	})
}

func TestSwipe(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) *fixture {
		f := setupEngine(t, Options{})
		f.addTracks(2)
		if _, err := f.engine.Sync(ctx, f.userID, nil); err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		return f
	}

	t.Run("keep", func(t *testing.T) {
		f := setup(t)
		if err := f.engine.Swipe(ctx, f.userID, "t1", models.Kept); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		f.fake.Lock()
		defer f.fake.Unlock()
		if len(f.fake.Removed) != 0 {
			t.Errorf("keep must not touch the library, removed %v", f.fake.Removed)
		}
	})

	t.Run("remove deletes from Spotify", func(t *testing.T) {
		f := setup(t)
		if err := f.engine.Swipe(ctx, f.userID, "t1", models.Removed); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		f.fake.Lock()
		removed := append([]string(nil), f.fake.Removed...)
		f.fake.Unlock()
		if len(removed) != 1 || removed[0] != "t1" {
			t.Errorf("expected t1 removed, got %v", removed)
		}

		records, _ := f.engine.Decisions(f.userID, models.Removed)
		if len(records) != 1 || records[0].Track.SpotifyTrackID() != "t1" {
			t.Errorf("expected removal recorded, got %v", records)
		}
	})

	t.Run("second swipe is rejected", func(t *testing.T) {
		f := setup(t)
		if err := f.engine.Swipe(ctx, f.userID, "t1", models.Kept); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := f.engine.Swipe(ctx, f.userID, "t1", models.Removed); !errors.Is(err, shared.ErrTrackNotPending) {
			t.Errorf("expected ErrTrackNotPending, got %v", err)
		}
	})

	t.Run("unknown track", func(t *testing.T) {
		f := setup(t)
		if err := f.engine.Swipe(ctx, f.userID, "nope", models.Kept); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("track of another user", func(t *testing.T) {
		f := setup(t)
		if err := f.engine.Swipe(ctx, "someone-else", "t1", models.Kept); !errors.Is(err, shared.ErrTrackNotPending) {
			t.Errorf("expected ErrTrackNotPending, got %v", err)
		}
	})

	t.Run("invalid decision", func(t *testing.T) {
		f := setup(t)
		if err := f.engine.Swipe(ctx, f.userID, "t1", models.Pending); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("failed removal leaves track pending", func(t *testing.T) {
		f := setup(t)
		f.fake.Lock()
		f.fake.APIStatus = http.StatusBadGateway
		f.fake.Unlock()

		if err := f.engine.Swipe(ctx, f.userID, "t1", models.Removed); !errors.Is(err, shared.ErrUpstreamRejected) {
			t.Fatalf("expected ErrUpstreamRejected, got %v", err)
		}
		counts, _ := f.engine.Counts(f.userID)
		if counts[models.Pending] != 2 {
			t.Errorf("expected both tracks still pending, got %v", counts)
		}
	})
}

func TestSaved(t *testing.T) {
	f := setupEngine(t, Options{})
	f.addTracks(3)

	raw, err := f.engine.Saved(context.Background(), f.userID, 2, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(string(raw), `"offset":1`) || !strings.Contains(string(raw), `"t2"`) {
		t.Errorf("unexpected page: %s", raw)
	}
}

func TestBackfillPreviews(t *testing.T) {
	ctx := context.Background()
	f := setupEngine(t, Options{Workers: 3})
	f.addTracks(6)
	f.fake.SetTrackPreview("t2", "https://p.scdn.co/mp3-preview/t2-full")
	f.fake.SetTrackPreview("t4", "https://p.scdn.co/mp3-preview/t4-full")

	if _, err := f.engine.Sync(ctx, f.userID, nil); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	progress := make(chan ProgressUpdate, 16)
	result, err := f.engine.BackfillPreviews(ctx, f.userID, progress)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Checked != 3 || result.Found != 2 || result.Failed != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if updates := drain(progress); len(updates) != 3 {
		t.Errorf("expected one update per track, got %d", len(updates))
	}

	stored, _ := repositories.NewTrackRepository(f.db).GetBySpotifyID("t4")
	if stored.PreviewURL() != "https://p.scdn.co/mp3-preview/t4-full" {
		t.Errorf("preview not stored: %q", stored.PreviewURL())
	}
}

func TestPhaseString(t *testing.T) {
	tests := map[Phase]string{
		FetchLibrary:  "fetch_library",
		QueueTracks:   "queue_tracks",
		FetchPreviews: "fetch_previews",
		Complete:      "complete",
		Phase(99):     "",
	}
	for phase, want := range tests {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(phase), got, want)
		}
	}
}
