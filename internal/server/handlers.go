package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/shared"
)

const (
	defaultSavedLimit = 20
	maxSavedLimit     = 50
	maxBodyBytes      = 1 << 16
)

// MeResponse is the body of GET /auth/me.
type MeResponse struct {
	ID            string  `json:"id"`
	SpotifyUserID string  `json:"spotify_user_id"`
	DisplayName   *string `json:"display_name"`
	AvatarURL     *string `json:"avatar_url"`
}

// TrackResponse is the body of GET /tracks/next.
type TrackResponse struct {
	ID             string  `json:"id"`
	SpotifyTrackID string  `json:"spotify_track_id"`
	Name           string  `json:"name"`
	Artists        *string `json:"artists"`
	AlbumName      *string `json:"album_name"`
	ArtworkURL     *string `json:"artwork_url"`
	PreviewURL     *string `json:"preview_url"`
	DurationMS     *int    `json:"duration_ms"`
}

// SwipeRequest is the body of POST /tracks/swipe.
type SwipeRequest struct {
	SpotifyTrackID string `json:"spotify_track_id"`
	Action         string `json:"action"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newMeResponse(u *models.User) MeResponse {
	return MeResponse{
		ID:            u.ID(),
		SpotifyUserID: u.SpotifyUserID(),
		DisplayName:   optional(u.DisplayName()),
		AvatarURL:     optional(u.AvatarURL()),
	}
}

func newTrackResponse(t *models.Track) *TrackResponse {
	resp := &TrackResponse{
		ID:             t.ID(),
		SpotifyTrackID: t.SpotifyTrackID(),
		Name:           t.Name(),
		Artists:        optional(t.Artists()),
		AlbumName:      optional(t.AlbumName()),
		ArtworkURL:     optional(t.ArtworkURL()),
		PreviewURL:     optional(t.PreviewURL()),
	}
	if d := t.DurationMS(); d > 0 {
		resp.DurationMS = &d
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.DB.PingContext(r.Context()); err != nil {
		writeError(w, r, s.logger, fmt.Errorf("%w: database: %v", shared.ErrServiceUnavailable, err))
		return
	}
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		writeError(w, r, s.logger, fmt.Errorf("%w: store: %v", shared.ErrServiceUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.deps.Flow.Login(r.Context())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorization_url": authURL})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	writeJSON(w, http.StatusOK, newMeResponse(user))
}

// handleLogout revokes the session named by the cookie, if any, and always clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.cookies.name); err == nil && c.Value != "" {
		if err := s.deps.Flow.Logout(r.Context(), c.Value); err != nil {
			writeError(w, r, s.logger, err)
			return
		}
	}
	http.SetCookie(w, s.cookies.cleared())
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleRedirectURI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"redirect_uri": s.deps.RedirectURI})
}

// handleNext writes the next pending track, or null once every saved track has been decided.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())

	track, err := s.deps.Engine.Next(r.Context(), user.ID())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if track == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, newTrackResponse(track))
}

func (s *Server) handleSwipe(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())

	var body SwipeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if body.SpotifyTrackID == "" {
		writeDetail(w, http.StatusBadRequest, "spotify_track_id is required")
		return
	}

	var decision models.Decision
	switch body.Action {
	case "keep":
		decision = models.Kept
	case "remove":
		decision = models.Removed
	default:
		writeDetail(w, http.StatusBadRequest, "action must be 'keep' or 'remove'")
		return
	}

	if err := s.deps.Engine.Swipe(r.Context(), user.ID(), body.SpotifyTrackID, decision); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// handleSaved proxies one page of the user's saved tracks.
func (s *Server) handleSaved(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())

	limit, err := intParam(r, "limit", defaultSavedLimit)
	if err != nil || limit < 1 || limit > maxSavedLimit {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxSavedLimit))
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		writeDetail(w, http.StatusBadRequest, "offset must be >= 0")
		return
	}

	raw, err := s.deps.Engine.Saved(r.Context(), user.ID(), limit, offset)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", shared.ErrInvalidArgument, name)
	}
	return n, nil
}
