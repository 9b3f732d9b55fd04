package models

import (
	"fmt"
	"time"
)

// Decision is a user's verdict on a saved track.
type Decision string

const (
	Pending Decision = "pending"
	Kept    Decision = "kept"
	Removed Decision = "removed"
)

// ParseDecision maps a swipe action ("keep" or "remove") or a stored state to a [Decision].
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "keep", string(Kept):
		return Kept, nil
	case "remove", string(Removed):
		return Removed, nil
	case string(Pending):
		return Pending, nil
	default:
		return "", fmt.Errorf("unknown decision %q", s)
	}
}

// TrackState records where a track sits in a user's queue.
type TrackState struct {
	UserID    string
	TrackID   string
	State     Decision
	UpdatedAt time.Time
}

// DecisionRecord joins a [Track] with the user's [TrackState] for listing and export.
type DecisionRecord struct {
	Track     *Track
	State     Decision
	UpdatedAt time.Time
}
