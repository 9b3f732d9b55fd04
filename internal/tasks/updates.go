package tasks

import (
	"fmt"

	"github.com/desertthunder/cur8/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase (0 when unknown)
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchLibrary Phase = iota
	QueueTracks
	FetchPreviews
	Complete
)

func (p Phase) String() string {
	switch p {
	case FetchLibrary:
		return "fetch_library"
	case QueueTracks:
		return "queue_tracks"
	case FetchPreviews:
		return "fetch_previews"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func fetchPageUpdate(page, offset int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLibrary,
		Step:    page,
		Message: fmt.Sprintf("Fetching saved tracks (page %d, offset %d)...", page, offset),
	}
}

func queuedPageUpdate(seen, total, queued int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   QueueTracks,
		Step:    seen,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %d new tracks queued", seen, total, queued),
	}
}

func previewUpdate(step, total int, tr *models.Track, found bool) ProgressUpdate {
	mark := "✗"
	if found {
		mark = "✓"
	}
	return ProgressUpdate{
		Phase:   FetchPreviews,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s - %s", step, total, mark, tr.Artists(), tr.Name()),
		Data:    tr,
	}
}

func syncCompleteUpdate(result *SyncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    result.Seen,
		Total:   result.Seen,
		Message: fmt.Sprintf("Sync complete: %d tracks seen, %d newly queued", result.Seen, result.Queued),
		Data:    result,
	}
}
