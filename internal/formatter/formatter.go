// package formatter exports a user's swipe decisions to various formats (CSV, Markdown, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/shared"
)

// Format names an export encoding.
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "md"
	JSON     Format = "json"
)

// ParseFormat accepts csv, md/markdown and json, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return CSV, nil
	case "md", "markdown":
		return Markdown, nil
	case "json":
		return JSON, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q (want csv, md or json)", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// DecisionExport is everything written for one user.
type DecisionExport struct {
	User        *models.User
	GeneratedAt time.Time
	Records     []models.DecisionRecord
}

// Counts tallies the records by decision.
func (e *DecisionExport) Counts() map[models.Decision]int {
	counts := make(map[models.Decision]int, 3)
	for _, r := range e.Records {
		counts[r.State]++
	}
	return counts
}

func (e *DecisionExport) displayName() string {
	if e.User == nil {
		return ""
	}
	if name := e.User.DisplayName(); name != "" {
		return name
	}
	return e.User.SpotifyUserID()
}

// ExportToCSV converts an export to CSV with columns:
// Spotify ID, Name, Artists, Album, Duration, Decision, Decided At
func ExportToCSV(export *DecisionExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Spotify ID", "Name", "Artists", "Album", "Duration", "Decision", "Decided At"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range export.Records {
		record := []string{
			r.Track.SpotifyTrackID(),
			r.Track.Name(),
			r.Track.Artists(),
			r.Track.AlbumName(),
			r.Track.Duration(),
			string(r.State),
			r.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders one section per decision, kept first, then removed, then pending.
func ExportToMarkdown(export *DecisionExport) ([]byte, error) {
	var buf bytes.Buffer

	title := "cur8 decisions"
	if name := export.displayName(); name != "" {
		title = fmt.Sprintf("cur8 decisions for %s", name)
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)

	if !export.GeneratedAt.IsZero() {
		fmt.Fprintf(&buf, "**Generated**: %s\n", export.GeneratedAt.UTC().Format(time.RFC3339))
	}
	counts := export.Counts()
	fmt.Fprintf(&buf, "**Tracks**: %d (%d kept, %d removed, %d pending)\n",
		len(export.Records), counts[models.Kept], counts[models.Removed], counts[models.Pending])

	for _, d := range []models.Decision{models.Kept, models.Removed, models.Pending} {
		if counts[d] == 0 {
			continue
		}

		fmt.Fprintf(&buf, "\n## %s\n\n", sectionTitle(d))
		i := 0
		for _, r := range export.Records {
			if r.State != d {
				continue
			}
			i++
			albumPart := ""
			if album := r.Track.AlbumName(); album != "" {
				albumPart = fmt.Sprintf(" (%s)", album)
			}
			fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i, r.Track.Artists(), r.Track.Name(), albumPart, r.Track.Duration())
		}
	}

	return buf.Bytes(), nil
}

func sectionTitle(d models.Decision) string {
	switch d {
	case models.Kept:
		return "Kept"
	case models.Removed:
		return "Removed"
	default:
		return "Pending"
	}
}

type jsonTrack struct {
	SpotifyTrackID string    `json:"spotify_track_id"`
	Name           string    `json:"name"`
	Artists        string    `json:"artists,omitempty"`
	AlbumName      string    `json:"album_name,omitempty"`
	ArtworkURL     string    `json:"artwork_url,omitempty"`
	PreviewURL     string    `json:"preview_url,omitempty"`
	DurationMS     int       `json:"duration_ms,omitempty"`
	Decision       string    `json:"decision"`
	DecidedAt      time.Time `json:"decided_at"`
}

type jsonExport struct {
	SpotifyUserID string         `json:"spotify_user_id,omitempty"`
	DisplayName   string         `json:"display_name,omitempty"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Counts        map[string]int `json:"counts"`
	Tracks        []jsonTrack    `json:"tracks"`
}

// ExportToJSON converts an export to indented JSON.
func ExportToJSON(export *DecisionExport) ([]byte, error) {
	out := jsonExport{
		GeneratedAt: export.GeneratedAt.UTC(),
		Counts:      map[string]int{},
		Tracks:      make([]jsonTrack, 0, len(export.Records)),
	}
	if export.User != nil {
		out.SpotifyUserID = export.User.SpotifyUserID()
		out.DisplayName = export.User.DisplayName()
	}
	for d, n := range export.Counts() {
		out.Counts[string(d)] = n
	}
	for _, r := range export.Records {
		out.Tracks = append(out.Tracks, jsonTrack{
			SpotifyTrackID: r.Track.SpotifyTrackID(),
			Name:           r.Track.Name(),
			Artists:        r.Track.Artists(),
			AlbumName:      r.Track.AlbumName(),
			ArtworkURL:     r.Track.ArtworkURL(),
			PreviewURL:     r.Track.PreviewURL(),
			DurationMS:     r.Track.DurationMS(),
			Decision:       string(r.State),
			DecidedAt:      r.UpdatedAt.UTC(),
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Render encodes export in the given format.
func Render(export *DecisionExport, format Format) ([]byte, error) {
	switch format {
	case CSV:
		return ExportToCSV(export)
	case Markdown:
		return ExportToMarkdown(export)
	case JSON:
		return ExportToJSON(export)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, format)
	}
}

// Write renders export to w.
func Write(w io.Writer, export *DecisionExport, format Format) error {
	data, err := Render(export, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// WriteFile renders export to path and returns the path written.
//
// An empty path defaults to cur8_<spotify user id>_decisions.<ext> in the working directory; a path
// naming an existing directory gets that default file name inside it.
func WriteFile(export *DecisionExport, format Format, path string) (string, error) {
	name := "cur8_decisions" + format.Extension()
	if export.User != nil {
		name = fmt.Sprintf("cur8_%s_decisions%s", export.User.SpotifyUserID(), format.Extension())
	}

	switch info, err := os.Stat(path); {
	case path == "":
		path = name
	case err == nil && info.IsDir():
		path = filepath.Join(path, name)
	}

	data, err := Render(export, format)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
