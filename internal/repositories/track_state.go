package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/shared"
)

// TrackStateRepository stores each user's [models.Decision] per track and serves the pending queue.
type TrackStateRepository struct {
	db Querier
}

// NewTrackStateRepository creates a new [TrackStateRepository] over a database or transaction.
func NewTrackStateRepository(db Querier) *TrackStateRepository {
	return &TrackStateRepository{db: db}
}

// EnsurePending queues the track for the user unless a state already exists.
// Reports whether a new pending row was created.
func (r *TrackStateRepository) EnsurePending(userID, trackID string) (bool, error) {
	result, err := r.db.Exec(`
		INSERT INTO user_track_states (user_id, track_id, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, track_id) DO NOTHING
	`, userID, trackID, models.Pending, utcNow())
	if err != nil {
		return false, fmt.Errorf("failed to queue track: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// Get returns the user's state for a track or [shared.ErrTrackNotPending] when none exists.
func (r *TrackStateRepository) Get(userID, trackID string) (*models.TrackState, error) {
	var (
		state     string
		updatedAt time.Time
	)
	err := r.db.QueryRow("SELECT state, updated_at FROM user_track_states WHERE user_id = ? AND track_id = ?",
		userID, trackID).Scan(&state, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTrackNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query track state: %w", err)
	}

	return &models.TrackState{UserID: userID, TrackID: trackID, State: models.Decision(state), UpdatedAt: updatedAt}, nil
}

// Decide moves a pending track to decision. A track that is not pending for the user yields
// [shared.ErrTrackNotPending]; the conditional UPDATE makes concurrent swipes on one track settle once.
func (r *TrackStateRepository) Decide(userID, trackID string, decision models.Decision) error {
	result, err := r.db.Exec(`
		UPDATE user_track_states SET state = ?, updated_at = ?
		WHERE user_id = ? AND track_id = ? AND state = ?
	`, decision, utcNow(), userID, trackID, models.Pending)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return requireAffected(result, shared.ErrTrackNotPending)
}

// NextPending picks a random pending track for the user, or returns nil when the queue is empty.
func (r *TrackStateRepository) NextPending(userID string) (*models.Track, error) {
	row := r.db.QueryRow(`
		SELECT `+trackColumns+`
		FROM tracks t
		JOIN user_track_states s ON s.track_id = t.id
		WHERE s.user_id = ? AND s.state = ?
		ORDER BY RANDOM()
		LIMIT 1
	`, userID, models.Pending)

	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return track, err
}

// Counts returns how many of the user's tracks are in each state.
func (r *TrackStateRepository) Counts(userID string) (map[models.Decision]int, error) {
	rows, err := r.db.Query("SELECT state, COUNT(*) FROM user_track_states WHERE user_id = ? GROUP BY state", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count track states: %w", err)
	}
	defer rows.Close()

	counts := map[models.Decision]int{models.Pending: 0, models.Kept: 0, models.Removed: 0}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan track state count: %w", err)
		}
		counts[models.Decision(state)] = n
	}
	return counts, rows.Err()
}

// Decisions lists the user's tracks with their state, most recently decided first.
// An empty filter returns every state.
func (r *TrackStateRepository) Decisions(userID string, filter ...models.Decision) ([]models.DecisionRecord, error) {
	query := `
		SELECT ` + trackColumns + `, s.state, s.updated_at
		FROM tracks t
		JOIN user_track_states s ON s.track_id = t.id
		WHERE s.user_id = ?`
	args := []any{userID}

	if len(filter) > 0 {
		query += " AND s.state IN (?" + strings.Repeat(",?", len(filter)-1) + ")"
		for _, d := range filter {
			args = append(args, d)
		}
	}
	query += " ORDER BY s.updated_at DESC, t.sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var records []models.DecisionRecord
	for rows.Next() {
		var (
			state     string
			updatedAt time.Time
		)
		track, err := scanTrack(rows, &state, &updatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, models.DecisionRecord{Track: track, State: models.Decision(state), UpdatedAt: updatedAt})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}
