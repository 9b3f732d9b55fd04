package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/shared"
)

// Admitter decides whether a user may make another Spotify-bound call.
type Admitter interface {
	Allow(ctx context.Context, subject string) (bool, error)
}

// GatedEngine charges the user's shared rate limit bucket before each operation that calls
// Spotify, so the CLI and TUI draw on the same quota as the HTTP API.
//
// Counts and Decisions only read SQLite and pass straight through.
type GatedEngine struct {
	*LibraryEngine
	gate Admitter
}

// NewGatedEngine wraps engine with gate.
func NewGatedEngine(engine *LibraryEngine, gate Admitter) *GatedEngine {
	return &GatedEngine{LibraryEngine: engine, gate: gate}
}

func (g *GatedEngine) admit(ctx context.Context, userID string) error {
	ok, err := g.gate.Allow(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w; try shortly", shared.ErrRateLimited)
	}
	return nil
}

func (g *GatedEngine) Sync(ctx context.Context, userID string, progress chan<- ProgressUpdate) (*SyncResult, error) {
	if err := g.admit(ctx, userID); err != nil {
		return nil, err
	}
	return g.LibraryEngine.Sync(ctx, userID, progress)
}

func (g *GatedEngine) Next(ctx context.Context, userID string) (*models.Track, error) {
	if err := g.admit(ctx, userID); err != nil {
		return nil, err
	}
	return g.LibraryEngine.Next(ctx, userID)
}

func (g *GatedEngine) Swipe(ctx context.Context, userID, spotifyTrackID string, decision models.Decision) error {
	if err := g.admit(ctx, userID); err != nil {
		return err
	}
	return g.LibraryEngine.Swipe(ctx, userID, spotifyTrackID, decision)
}

func (g *GatedEngine) Saved(ctx context.Context, userID string, limit, offset int) (json.RawMessage, error) {
	if err := g.admit(ctx, userID); err != nil {
		return nil, err
	}
	return g.LibraryEngine.Saved(ctx, userID, limit, offset)
}

func (g *GatedEngine) BackfillPreviews(ctx context.Context, userID string, progress chan<- ProgressUpdate) (*BackfillResult, error) {
	if err := g.admit(ctx, userID); err != nil {
		return nil, err
	}
	return g.LibraryEngine.BackfillPreviews(ctx, userID, progress)
}

var _ SwipeEngine = (*GatedEngine)(nil)
