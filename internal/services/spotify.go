// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/desertthunder/cur8/internal/shared"
)

// maxSavedTracksPage is the largest page Spotify serves for /me/tracks.
const maxSavedTracksPage = 50

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"`
	Images      []SpotifyImage `json:"images"`
}

// AvatarURL returns the first profile image, if any.
func (u *SpotifyUser) AvatarURL() string {
	if len(u.Images) == 0 {
		return ""
	}
	return u.Images[0].URL
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	PreviewURL *string         `json:"preview_url"`
	Explicit   bool            `json:"explicit"`
	URI        string          `json:"uri"`
}

// ArtistNames joins the artist names with ", ".
func (t *SpotifyTrack) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// Preview returns the preview URL or "" when Spotify has none.
func (t *SpotifyTrack) Preview() string {
	if t.PreviewURL == nil {
		return ""
	}
	return *t.PreviewURL
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// Artwork returns the first (largest) album image, if any.
func (a *SpotifyAlbum) Artwork() string {
	if len(a.Images) == 0 {
		return ""
	}
	return a.Images[0].URL
}

// SpotifyPaginatedTracks represents a paginated response of saved tracks.
type SpotifyPaginatedTracks struct {
	Items    []SpotifySavedTrack `json:"items"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
	Next     *string             `json:"next"`
	Previous *string             `json:"previous"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// UpstreamError is a non-2xx answer from Spotify.
type UpstreamError struct {
	StatusCode int
	Message    string
	err        error
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: spotify status %d", e.err, e.StatusCode)
	}
	return fmt.Sprintf("%v: spotify status %d: %s", e.err, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.err }

// SpotifyService talks to the Spotify accounts service and Web API.
type SpotifyService struct {
	config     *oauth2.Config
	apiURL     string
	httpClient *http.Client
	logger     *log.Logger
}

// NewSpotifyService creates a Spotify client from the [shared.SpotifyConfig].
//
// Every outbound request is bounded by cfg.UpstreamTimeout().
func NewSpotifyService(cfg *shared.Config, logger *log.Logger) (*SpotifyService, error) {
	sc := cfg.Spotify
	if sc.ClientID == "" {
		return nil, fmt.Errorf("%w: spotify client_id", shared.ErrMissingCredentials)
	}
	if sc.RedirectURI == "" {
		return nil, fmt.Errorf("%w: spotify redirect_uri", shared.ErrMissingConfig)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &SpotifyService{
		config: &oauth2.Config{
			ClientID:     sc.ClientID,
			ClientSecret: sc.ClientSecret,
			RedirectURL:  sc.RedirectURI,
			Scopes:       sc.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   sc.AuthURL,
				TokenURL:  sc.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:     strings.TrimRight(sc.APIURL, "/"),
		httpClient: &http.Client{Timeout: cfg.UpstreamTimeout()},
		logger:     shared.WithLogger(logger, "component", "spotify"),
	}, nil
}

// WithHTTPClient replaces the HTTP client, e.g. with one using a test transport.
func (s *SpotifyService) WithHTTPClient(c *http.Client) *SpotifyService {
	s.httpClient = c
	return s
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// RedirectURI returns the callback URL registered with Spotify.
func (s *SpotifyService) RedirectURI() string {
	return s.config.RedirectURL
}

// AuthURL returns the consent page URL for state with an S256 code challenge.
func (s *SpotifyService) AuthURL(state, challenge string) string {
	return s.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("code_challenge", challenge),
	)
}

// ExchangeCode redeems an authorization code together with its PKCE verifier.
func (s *SpotifyService) ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	tok, err := s.config.Exchange(s.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, s.tokenError("exchange", err)
	}
	return toTokenResponse(tok), nil
}

// RefreshToken performs a refresh_token grant.
func (s *SpotifyService) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token", shared.ErrMissingArgument)
	}

	src := s.config.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, s.tokenError("refresh", err)
	}

	resp := toTokenResponse(tok)
	if resp.RefreshToken == refreshToken {
		// oauth2 copies the old refresh token forward when none was issued.
		resp.RefreshToken = ""
	}
	return resp, nil
}

func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func (s *SpotifyService) tokenError(grant string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		msg := summarizeError(re.Body)
		s.logger.Warn("token grant rejected", "grant", grant, "status", status, "error", msg)
		return &UpstreamError{StatusCode: status, Message: msg, err: shared.ErrUpstreamRejected}
	}
	s.logger.Warn("token grant failed", "grant", grant, "error", err)
	return fmt.Errorf("%w: %s grant: %v", shared.ErrAPIRequest, grant, err)
}

func toTokenResponse(tok *oauth2.Token) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    int(tok.ExpiresIn),
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	if resp.ExpiresIn <= 0 {
		resp.ExpiresIn = DefaultExpiresIn
	}
	return resp
}

// doRequest performs a bearer-authenticated Web API request and decodes a 2xx JSON body into result.
func (s *SpotifyService) doRequest(ctx context.Context, accessToken, method, endpoint string, query url.Values, result any) error {
	if accessToken == "" {
		return shared.ErrNotAuthenticated
	}

	apiURL := s.apiURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", shared.ErrAPIRequest, method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		uerr := &UpstreamError{StatusCode: resp.StatusCode, Message: summarizeError(body)}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			uerr.err = shared.ErrTokenInvalid
		case http.StatusTooManyRequests:
			uerr.err = shared.ErrRateLimited
		default:
			uerr.err = shared.ErrUpstreamRejected
		}
		s.logger.Warn("web api request rejected", "method", method, "endpoint", endpoint,
			"status", resp.StatusCode, "error", uerr.Message)
		return uerr
	}

	switch r := result.(type) {
	case nil:
		return nil
	case *json.RawMessage:
		*r = json.RawMessage(body)
		return nil
	default:
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
		}
		return nil
	}
}

// UserProfile retrieves the profile of the token's owner.
func (s *SpotifyService) UserProfile(ctx context.Context, accessToken string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, accessToken, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: profile without id", shared.ErrAPIRequest)
	}
	return &user, nil
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, accessToken, trackID string) (*SpotifyTrack, error) {
	var track SpotifyTrack
	if err := s.doRequest(ctx, accessToken, http.MethodGet, "/tracks/"+url.PathEscape(trackID), nil, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// SavedTracks retrieves one page of the user's saved tracks. limit is clamped to 1..50.
func (s *SpotifyService) SavedTracks(ctx context.Context, accessToken string, limit, offset int) (*SpotifyPaginatedTracks, error) {
	var page SpotifyPaginatedTracks
	if err := s.doRequest(ctx, accessToken, http.MethodGet, "/me/tracks", pageQuery(limit, offset), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SavedTracksRaw is [SpotifyService.SavedTracks] returning Spotify's JSON untouched, for pass-through.
func (s *SpotifyService) SavedTracksRaw(ctx context.Context, accessToken string, limit, offset int) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := s.doRequest(ctx, accessToken, http.MethodGet, "/me/tracks", pageQuery(limit, offset), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// RemoveSavedTracks deletes tracks from the user's library (at most 50 per call).
func (s *SpotifyService) RemoveSavedTracks(ctx context.Context, accessToken string, trackIDs ...string) error {
	if len(trackIDs) == 0 {
		return fmt.Errorf("%w: no track IDs provided", shared.ErrMissingArgument)
	}
	if len(trackIDs) > maxSavedTracksPage {
		return fmt.Errorf("%w: maximum %d track IDs allowed", shared.ErrInvalidArgument, maxSavedTracksPage)
	}

	query := url.Values{"ids": {strings.Join(trackIDs, ",")}}
	return s.doRequest(ctx, accessToken, http.MethodDelete, "/me/tracks", query, nil)
}

func pageQuery(limit, offset int) url.Values {
	limit = max(1, min(limit, maxSavedTracksPage))
	offset = max(0, offset)
	return url.Values{"limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}
}

// summarizeError extracts a human-readable message from a Spotify error body.
//
// Web API errors look like {"error":{"status":401,"message":"..."}}; the accounts service answers
// {"error":"invalid_grant","error_description":"..."}.
func summarizeError(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(truncate(string(body), 200))
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return msg.String()
	}
	if desc := gjson.GetBytes(body, "error_description"); desc.Exists() {
		return gjson.GetBytes(body, "error").String() + ": " + desc.String()
	}
	if code := gjson.GetBytes(body, "error"); code.Type == gjson.String {
		return code.String()
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
