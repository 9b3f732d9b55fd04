package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/repositories"
	"github.com/desertthunder/cur8/internal/services"
	"github.com/desertthunder/cur8/internal/shared"
)

const (
	// DefaultPageSize is the largest page Spotify serves for saved tracks.
	DefaultPageSize = 50
	// DefaultPagesPerSecond paces library paging.
	DefaultPagesPerSecond = 5.0
	// DefaultWorkers bounds concurrent preview lookups.
	DefaultWorkers = 4
)

// TokenSource yields a valid Spotify access token for a user.
type TokenSource interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// Library is the Spotify surface the engine reads and writes.
type Library interface {
	SavedTracks(ctx context.Context, accessToken string, limit, offset int) (*services.SpotifyPaginatedTracks, error)
	SavedTracksRaw(ctx context.Context, accessToken string, limit, offset int) (json.RawMessage, error)
	Track(ctx context.Context, accessToken, trackID string) (*services.SpotifyTrack, error)
	RemoveSavedTracks(ctx context.Context, accessToken string, trackIDs ...string) error
}

var _ Library = (*services.SpotifyService)(nil)

// SwipeEngine defines the operations behind the swipe queue.
type SwipeEngine interface {
	// Sync queues every saved track the user has not decided on yet.
	Sync(ctx context.Context, userID string, progress chan<- ProgressUpdate) (*SyncResult, error)

	// Next returns a random pending track, syncing first when the queue is empty. Nil means nothing is left.
	Next(ctx context.Context, userID string) (*models.Track, error)

	// Swipe records a decision on a pending track; removal also deletes it from the Spotify library.
	Swipe(ctx context.Context, userID, spotifyTrackID string, decision models.Decision) error

	// Saved returns one page of the user's saved tracks exactly as Spotify sent it.
	Saved(ctx context.Context, userID string, limit, offset int) (json.RawMessage, error)
}

// SyncResult summarizes a library sync.
type SyncResult struct {
	Pages  int // Pages fetched from Spotify
	Seen   int // Saved tracks seen
	Queued int // Tracks newly queued as pending
}

// BackfillResult summarizes a preview backfill.
type BackfillResult struct {
	Checked int
	Found   int
	Failed  int
}

// Options tunes upstream paging.
type Options struct {
	PageSize       int     // Saved tracks per request (1..50, default 50)
	PagesPerSecond float64 // Request pace (default 5)
	Workers        int     // Concurrent preview lookups (default 4, max 10)
}

// LibraryEngine implements [SwipeEngine] on SQLite and the Spotify Web API.
type LibraryEngine struct {
	db      *sql.DB
	tokens  TokenSource
	library Library
	opts    Options
	logger  *log.Logger
}

// NewLibraryEngine creates a [LibraryEngine]. Zero option fields take their defaults.
func NewLibraryEngine(db *sql.DB, tokens TokenSource, library Library, opts Options, logger *log.Logger) *LibraryEngine {
	if opts.PageSize <= 0 || opts.PageSize > DefaultPageSize {
		opts.PageSize = DefaultPageSize
	}
	if opts.PagesPerSecond <= 0 {
		opts.PagesPerSecond = DefaultPagesPerSecond
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Workers > 10 {
		opts.Workers = 10
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &LibraryEngine{
		db:      db,
		tokens:  tokens,
		library: library,
		opts:    opts,
		logger:  shared.WithLogger(logger, "component", "library"),
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *LibraryEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func (e *LibraryEngine) newPacer() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(e.opts.PagesPerSecond), 1)
}

// Sync pages through the user's saved tracks, refreshing cached metadata and queueing unseen
// tracks as pending. Existing decisions are left alone. Each page is stored in its own transaction.
func (e *LibraryEngine) Sync(ctx context.Context, userID string, progress chan<- ProgressUpdate) (*SyncResult, error) {
	token, err := e.tokens.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	pacer := e.newPacer()

	for offset := 0; ; {
		if err := pacer.Wait(ctx); err != nil {
			return result, err
		}

		e.sendProgress(progress, fetchPageUpdate(result.Pages+1, offset))
		page, err := e.library.SavedTracks(ctx, token, e.opts.PageSize, offset)
		if err != nil {
			return result, fmt.Errorf("failed to fetch saved tracks: %w", err)
		}
		result.Pages++

		if len(page.Items) == 0 {
			break
		}

		queued, err := e.storePage(ctx, userID, page.Items)
		if err != nil {
			return result, err
		}
		result.Seen += len(page.Items)
		result.Queued += queued
		e.sendProgress(progress, queuedPageUpdate(result.Seen, page.Total, queued))

		offset += len(page.Items)
		if len(page.Items) < e.opts.PageSize || page.Next == nil {
			break
		}
	}

	e.logger.Info("library synced", "user_id", userID, "pages", result.Pages, "seen", result.Seen, "queued", result.Queued)
	e.sendProgress(progress, syncCompleteUpdate(result))
	return result, nil
}

func (e *LibraryEngine) storePage(ctx context.Context, userID string, items []services.SpotifySavedTrack) (int, error) {
	queued := 0
	err := repositories.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		tracks := repositories.NewTrackRepository(tx)
		states := repositories.NewTrackStateRepository(tx)

		for _, item := range items {
			if item.Track.ID == "" {
				// Local files and unavailable tracks have no Spotify ID.
				continue
			}
			track, err := tracks.Upsert(trackInfo(&item.Track))
			if err != nil {
				return err
			}
			created, err := states.EnsurePending(userID, track.ID())
			if err != nil {
				return err
			}
			if created {
				queued++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to store saved tracks: %w", err)
	}
	return queued, nil
}

func trackInfo(t *services.SpotifyTrack) models.TrackInfo {
	return models.TrackInfo{
		SpotifyTrackID: t.ID,
		Name:           t.Name,
		Artists:        t.ArtistNames(),
		AlbumName:      t.Album.Name,
		ArtworkURL:     t.Album.Artwork(),
		PreviewURL:     t.Preview(),
		DurationMS:     t.DurationMS,
	}
}

// Next returns a random pending track for the user. When none is pending the library is synced
// once and the queue consulted again; nil means the user has decided on every saved track.
//
// A missing preview URL is looked up on Spotify. That lookup is best effort: failures are logged
// and the track is returned without a preview.
func (e *LibraryEngine) Next(ctx context.Context, userID string) (*models.Track, error) {
	states := repositories.NewTrackStateRepository(e.db)

	track, err := states.NextPending(userID)
	if err != nil {
		return nil, err
	}
	if track == nil {
		if _, err := e.Sync(ctx, userID, nil); err != nil {
			return nil, err
		}
		if track, err = states.NextPending(userID); err != nil || track == nil {
			return nil, err
		}
	}

	if track.PreviewURL() == "" {
		e.backfillPreview(ctx, userID, track)
	}
	return track, nil
}

// backfillPreview fetches the full track object for a preview URL and stores it when found.
func (e *LibraryEngine) backfillPreview(ctx context.Context, userID string, track *models.Track) bool {
	token, err := e.tokens.AccessToken(ctx, userID)
	if err != nil {
		e.logger.Debug("preview lookup skipped", "track", track.SpotifyTrackID(), "error", err)
		return false
	}

	full, err := e.library.Track(ctx, token, track.SpotifyTrackID())
	if err != nil {
		e.logger.Debug("preview lookup failed", "track", track.SpotifyTrackID(), "error", err)
		return false
	}
	if full.Preview() == "" {
		return false
	}

	if err := repositories.NewTrackRepository(e.db).SetPreviewURL(track.ID(), full.Preview()); err != nil {
		e.logger.Warn("failed to store preview url", "track", track.SpotifyTrackID(), "error", err)
		return false
	}
	track.SetPreviewURL(full.Preview())
	return true
}

// BackfillPreviews looks up preview URLs for all of the user's pending tracks that lack one,
// using a bounded worker pool paced like [LibraryEngine.Sync].
func (e *LibraryEngine) BackfillPreviews(ctx context.Context, userID string, progress chan<- ProgressUpdate) (*BackfillResult, error) {
	records, err := repositories.NewTrackStateRepository(e.db).Decisions(userID, models.Pending)
	if err != nil {
		return nil, err
	}

	var missing []*models.Track
	for _, r := range records {
		if r.Track.PreviewURL() == "" {
			missing = append(missing, r.Track)
		}
	}

	result := &BackfillResult{Checked: len(missing)}
	if len(missing) == 0 {
		return result, nil
	}

	pacer := e.newPacer()
	var found, failed, step atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, track := range missing {
		g.Go(func() error {
			if err := pacer.Wait(gctx); err != nil {
				return err
			}
			ok := e.backfillPreview(gctx, userID, track)
			if ok {
				found.Add(1)
			} else {
				failed.Add(1)
			}
			e.sendProgress(progress, previewUpdate(int(step.Add(1)), len(missing), track, ok))
			return nil
		})
	}
	err = g.Wait()

	result.Found = int(found.Load())
	result.Failed = int(failed.Load())
	return result, err
}

// Swipe records keep or remove for a pending track. For removal the track is deleted from the
// user's Spotify library first; if that fails the track stays pending.
func (e *LibraryEngine) Swipe(ctx context.Context, userID, spotifyTrackID string, decision models.Decision) error {
	if decision != models.Kept && decision != models.Removed {
		return fmt.Errorf("%w: decision must be keep or remove", shared.ErrInvalidInput)
	}

	track, err := repositories.NewTrackRepository(e.db).GetBySpotifyID(spotifyTrackID)
	if err != nil {
		return err
	}

	states := repositories.NewTrackStateRepository(e.db)
	state, err := states.Get(userID, track.ID())
	if err != nil {
		return err
	}
	if state.State != models.Pending {
		return fmt.Errorf("%w: already %s", shared.ErrTrackNotPending, state.State)
	}

	if decision == models.Removed {
		token, err := e.tokens.AccessToken(ctx, userID)
		if err != nil {
			return err
		}
		if err := e.library.RemoveSavedTracks(ctx, token, spotifyTrackID); err != nil {
			return fmt.Errorf("failed to remove track from library: %w", err)
		}
	}

	if err := states.Decide(userID, track.ID(), decision); err != nil {
		return err
	}

	e.logger.Debug("swipe recorded", "user_id", userID, "track", spotifyTrackID, "decision", decision)
	return nil
}

// Saved returns one page of saved tracks untouched. limit is clamped to 1..50 and offset to >= 0.
func (e *LibraryEngine) Saved(ctx context.Context, userID string, limit, offset int) (json.RawMessage, error) {
	token, err := e.tokens.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.library.SavedTracksRaw(ctx, token, limit, offset)
}

// Counts returns how many of the user's tracks are in each state.
func (e *LibraryEngine) Counts(userID string) (map[models.Decision]int, error) {
	return repositories.NewTrackStateRepository(e.db).Counts(userID)
}

// Decisions lists the user's tracks with their state; an empty filter returns all of them.
func (e *LibraryEngine) Decisions(userID string, filter ...models.Decision) ([]models.DecisionRecord, error) {
	return repositories.NewTrackStateRepository(e.db).Decisions(userID, filter...)
}

var _ SwipeEngine = (*LibraryEngine)(nil)
