package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cur8/internal/formatter"
	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/shared"
	"github.com/desertthunder/cur8/internal/tasks"
)

// printProgress writes updates until progressCh is closed, then signals done.
func (r *Runner) printProgress(progressCh <-chan tasks.ProgressUpdate, done *sync.WaitGroup) {
	defer done.Done()
	for update := range progressCh {
		switch update.Phase {
		case tasks.FetchLibrary:
			r.writePlain("📥 %s\n", update.Message)
		case tasks.QueueTracks:
			r.writePlain("   %s\n", update.Message)
		case tasks.FetchPreviews:
			r.writePlain("   %s\n", update.Message)
		case tasks.Complete:
			r.writePlain("\n%s\n", update.Message)
		}
	}
}

// TracksSync queues the user's saved tracks and optionally backfills missing previews.
func (r *Runner) TracksSync(ctx context.Context, cmd *cli.Command) error {
	d, user, err := r.currentUser(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("starting sync", "user_id", user.ID())
	r.writePlain("Syncing saved tracks for %s...\n\n", displayName(user))

	var printing sync.WaitGroup
	progressCh := make(chan tasks.ProgressUpdate, 50)
	printing.Add(1)
	go r.printProgress(progressCh, &printing)

	start := time.Now()
	result, err := d.user.Sync(ctx, user.ID(), progressCh)

	var backfill *tasks.BackfillResult
	if err == nil && cmd.Bool("previews") {
		progressCh <- tasks.ProgressUpdate{Phase: tasks.FetchPreviews, Message: "Looking up missing previews..."}
		backfill, err = d.user.BackfillPreviews(ctx, user.ID(), progressCh)
	}
	close(progressCh)
	printing.Wait()

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Sync Complete!")
	r.writePlain("Pages fetched: %d\n", result.Pages)
	r.writePlain("Tracks seen: %d\n", result.Seen)
	r.writePlain("Newly queued: %d\n", result.Queued)
	if backfill != nil {
		r.writePlain("Previews found: %d/%d (%d failed)\n", backfill.Found, backfill.Checked, backfill.Failed)
	}
	r.writePlain("Elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// TracksStats prints the decision counts.
func (r *Runner) TracksStats(ctx context.Context, cmd *cli.Command) error {
	d, user, err := r.currentUser(ctx)
	if err != nil {
		return err
	}

	counts, err := d.user.Counts(user.ID())
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := map[string]int{}
		for _, decision := range []models.Decision{models.Kept, models.Removed, models.Pending} {
			out[string(decision)] = counts[decision]
		}
		return r.writeJSON(out, false)
	}

	total := counts[models.Kept] + counts[models.Removed] + counts[models.Pending]
	r.writePlainHeader(fmt.Sprintf("Library of %s", displayName(user)))
	r.writePlain("Kept:    %d\n", counts[models.Kept])
	r.writePlain("Removed: %d\n", counts[models.Removed])
	r.writePlain("Pending: %d\n", counts[models.Pending])
	r.writePlain("Total:   %d\n", total)
	return nil
}

// TracksSaved prints one page of saved tracks exactly as Spotify returned it.
func (r *Runner) TracksSaved(ctx context.Context, cmd *cli.Command) error {
	limit := int(cmd.Int("limit"))
	offset := int(cmd.Int("offset"))
	if limit < 1 || limit > 50 {
		return fmt.Errorf("%w: --limit must be between 1 and 50", shared.ErrInvalidArgument)
	}
	if offset < 0 {
		return fmt.Errorf("%w: --offset must be >= 0", shared.ErrInvalidArgument)
	}

	d, user, err := r.currentUser(ctx)
	if err != nil {
		return err
	}

	raw, err := d.user.Saved(ctx, user.ID(), limit, offset)
	if err != nil {
		return err
	}
	return r.writeJSON(json.RawMessage(raw), cmd.Bool("pretty"))
}

// TracksExport writes the user's decisions to a file, or stdout with --output -.
func (r *Runner) TracksExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	var filter []models.Decision
	for _, s := range cmd.StringSlice("state") {
		decision, err := models.ParseDecision(s)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		filter = append(filter, decision)
	}

	d, user, err := r.currentUser(ctx)
	if err != nil {
		return err
	}

	records, err := d.user.Decisions(user.ID(), filter...)
	if err != nil {
		return err
	}

	export := &formatter.DecisionExport{
		User:        user,
		GeneratedAt: time.Now(),
		Records:     records,
	}

	output := cmd.String("output")
	if output == "-" {
		return formatter.Write(r.output, export, format)
	}

	path, err := formatter.WriteFile(export, format, output)
	if err != nil {
		return err
	}

	r.logger.Infof("decisions exported to %v with %v tracks", path, len(records))
	r.writePlain("✓ Decisions exported to %s\n", path)
	r.writePlain("  Tracks: %d\n", len(records))
	return nil
}
