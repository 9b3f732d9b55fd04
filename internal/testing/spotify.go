package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/cur8/internal/shared"
)

// FakeSpotify is an in-process stand-in for the Spotify accounts service and Web API.
//
// Routes: POST /api/token, GET /v1/me, GET|DELETE /v1/me/tracks, GET /v1/tracks/{id}.
// Fields may be changed between requests; all access is guarded by the embedded mutex.
type FakeSpotify struct {
	*httptest.Server

	mu sync.Mutex

	// TokenFunc answers token grants. The default issues sequential access-N/refresh-N pairs.
	TokenFunc     func(form url.Values) (int, map[string]any)
	TokenRequests []url.Values

	Profile       map[string]any
	ProfileStatus int

	// APIStatus, when non-zero, is returned by every Web API route.
	APIStatus int
	// TrackStatus, when non-zero, is returned by GET /v1/tracks/{id}.
	TrackStatus int

	Saved     []map[string]any
	Removed   []string
	Tokens    []string // bearer tokens seen by the Web API, in order
	PageSizes []int

	issued int
}

// NewFakeSpotify starts a fake that is shut down when the test ends.
func NewFakeSpotify(t *testing.T) *FakeSpotify {
	t.Helper()

	f := &FakeSpotify{
		Profile: map[string]any{
			"id":           "spotify-user",
			"display_name": "Test Listener",
			"images":       []map[string]any{{"url": "https://i.scdn.co/image/avatar", "height": 64, "width": 64}},
		},
	}
	f.TokenFunc = f.defaultToken

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token", f.handleToken)
	mux.HandleFunc("GET /v1/me", f.handleProfile)
	mux.HandleFunc("GET /v1/me/tracks", f.handleSaved)
	mux.HandleFunc("DELETE /v1/me/tracks", f.handleRemove)
	mux.HandleFunc("GET /v1/tracks/{id}", f.handleTrack)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// Config returns the default configuration pointed at the fake.
func (f *FakeSpotify) Config() *shared.Config {
	cfg := shared.DefaultConfig()
	cfg.Spotify.ClientID = "test-client"
	cfg.Spotify.AuthURL = f.URL + "/authorize"
	cfg.Spotify.TokenURL = f.URL + "/api/token"
	cfg.Spotify.APIURL = f.URL + "/v1"
	return cfg
}

// AddSavedTrack appends a track to the fake library. An empty preview is served as null.
func (f *FakeSpotify) AddSavedTrack(id, name, artist, preview string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var previewURL any
	if preview != "" {
		previewURL = preview
	}
	f.Saved = append(f.Saved, map[string]any{
		"id":          id,
		"name":        name,
		"artists":     []map[string]any{{"id": "artist-" + id, "name": artist}},
		"album":       map[string]any{"id": "album-" + id, "name": "Album " + name, "images": []map[string]any{{"url": "https://i.scdn.co/image/" + id}}},
		"duration_ms": 200000,
		"preview_url": previewURL,
	})
}

// SetTrackPreview sets the preview served by GET /v1/tracks/{id} only, leaving /me/tracks unchanged.
func (f *FakeSpotify) SetTrackPreview(id, preview string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tr := range f.Saved {
		if tr["id"] == id {
			tr["full_preview_url"] = preview
		}
	}
}

// Lock exposes the guard so tests can read or mutate fields while the server is running.
func (f *FakeSpotify) Lock()   { f.mu.Lock() }
func (f *FakeSpotify) Unlock() { f.mu.Unlock() }

func (f *FakeSpotify) defaultToken(form url.Values) (int, map[string]any) {
	f.issued++
	body := map[string]any{
		"access_token": fmt.Sprintf("access-%d", f.issued),
		"token_type":   "Bearer",
		"expires_in":   3600,
		"scope":        "user-library-read user-library-modify",
	}
	if form.Get("grant_type") == "authorization_code" {
		body["refresh_token"] = fmt.Sprintf("refresh-%d", f.issued)
	}
	return http.StatusOK, body
}

func (f *FakeSpotify) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.TokenRequests = append(f.TokenRequests, r.PostForm)
	status, body := f.TokenFunc(r.PostForm)
	f.mu.Unlock()

	writeJSON(w, status, body)
}

func (f *FakeSpotify) authorize(w http.ResponseWriter, r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeJSON(w, http.StatusUnauthorized, apiError(http.StatusUnauthorized, "No token provided"))
		return false
	}

	f.Tokens = append(f.Tokens, token)
	if f.APIStatus != 0 {
		writeJSON(w, f.APIStatus, apiError(f.APIStatus, http.StatusText(f.APIStatus)))
		return false
	}
	return true
}

func (f *FakeSpotify) handleProfile(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authorize(w, r) {
		return
	}
	if f.ProfileStatus != 0 {
		writeJSON(w, f.ProfileStatus, apiError(f.ProfileStatus, "profile unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, f.Profile)
}

func (f *FakeSpotify) handleSaved(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authorize(w, r) {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}
	f.PageSizes = append(f.PageSizes, limit)

	items := []map[string]any{}
	for i := offset; i < len(f.Saved) && i < offset+limit; i++ {
		items = append(items, map[string]any{"added_at": "2024-01-01T00:00:00Z", "track": publicTrack(f.Saved[i])})
	}

	var next any
	if offset+limit < len(f.Saved) {
		next = fmt.Sprintf("%s/v1/me/tracks?offset=%d&limit=%d", f.URL, offset+limit, limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  len(f.Saved),
		"limit":  limit,
		"offset": offset,
		"next":   next,
	})
}

func (f *FakeSpotify) handleRemove(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authorize(w, r) {
		return
	}

	ids := strings.Split(r.URL.Query().Get("ids"), ",")
	f.Removed = append(f.Removed, ids...)
	f.Saved = slices.DeleteFunc(f.Saved, func(tr map[string]any) bool {
		return slices.Contains(ids, tr["id"].(string))
	})
	w.WriteHeader(http.StatusOK)
}

func (f *FakeSpotify) handleTrack(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authorize(w, r) {
		return
	}
	if f.TrackStatus != 0 {
		writeJSON(w, f.TrackStatus, apiError(f.TrackStatus, "track unavailable"))
		return
	}

	id := r.PathValue("id")
	for _, tr := range f.Saved {
		if tr["id"] != id {
			continue
		}
		full := publicTrack(tr)
		if p, ok := tr["full_preview_url"]; ok {
			full["preview_url"] = p
		}
		writeJSON(w, http.StatusOK, full)
		return
	}
	writeJSON(w, http.StatusNotFound, apiError(http.StatusNotFound, "Non existing id"))
}

// publicTrack strips fake-only keys.
func publicTrack(tr map[string]any) map[string]any {
	out := make(map[string]any, len(tr))
	for k, v := range tr {
		if k != "full_preview_url" {
			out[k] = v
		}
	}
	return out
}

func apiError(status int, msg string) map[string]any {
	return map[string]any{"error": map[string]any{"status": status, "message": msg}}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
