package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/cur8/internal/auth"
	"github.com/desertthunder/cur8/internal/ratelimit"
	"github.com/desertthunder/cur8/internal/services"
	"github.com/desertthunder/cur8/internal/shared"
	"github.com/desertthunder/cur8/internal/store"
	"github.com/desertthunder/cur8/internal/tasks"
	tu "github.com/desertthunder/cur8/internal/testing"
)

type testServer struct {
	srv   *Server
	fake  *tu.FakeSpotify
	mr    *miniredis.Miniredis
	flow  *auth.Flow
	clock *time.Time
}

func newTestServer(t *testing.T, mutate func(*shared.Config)) *testServer {
	t.Helper()
	logger := shared.NewLogger(io.Discard)

	fake := tu.NewFakeSpotify(t)
	cfg := fake.Config()
	if mutate != nil {
		mutate(cfg)
	}

	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	require.NoError(t, shared.RunMigrations(db))
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	st := store.NewRedis(client, "")

	spotify, err := services.NewSpotifyService(cfg, logger)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	clock := &now
	limiter := ratelimit.New(client, cfg.RateLimit, "", ratelimit.WithClock(func() time.Time { return *clock }))

	flow := auth.NewFlow(spotify, db, st, logger)
	creds := auth.NewCredentialManager(db, spotify, logger)
	engine := tasks.NewLibraryEngine(db, creds, spotify, tasks.Options{PagesPerSecond: 1000}, logger)

	srv := New(Deps{
		Config:      cfg,
		DB:          db,
		Store:       st,
		Flow:        flow,
		Limiter:     limiter,
		Engine:      engine,
		RedirectURI: spotify.RedirectURI(),
		Logger:      logger,
	})
	return &testServer{srv: srv, fake: fake, mr: mr, flow: flow, clock: clock}
}

func (ts *testServer) do(t *testing.T, method, target string, body io.Reader, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

// login drives /auth/login and /auth/callback and returns the session cookie.
func (ts *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := ts.do(t, http.MethodGet, "/auth/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	u, err := url.Parse(body.AuthorizationURL)
	require.NoError(t, err)

	rec = ts.do(t, http.MethodGet, "/auth/callback?code=auth-code&state="+url.QueryEscape(u.Query().Get("state")), nil)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == "cur8_session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Detail
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	ts.mr.SetError("LOADING")
	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthRoutes(t *testing.T) {
	t.Run("login returns authorization url", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodGet, "/auth/login", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "code_challenge_method=S256")
	})

	t.Run("callback sets cookie and redirects", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodGet, "/auth/login", nil)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		u, _ := url.Parse(body["authorization_url"])
		state := u.Query().Get("state")

		rec = ts.do(t, http.MethodGet, "/auth/callback?code=c&state="+url.QueryEscape(state), nil)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "http://localhost:5173", rec.Header().Get("Location"))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		c := cookies[0]
		assert.Equal(t, "cur8_session", c.Name)
		assert.True(t, c.HttpOnly)
		assert.False(t, c.Secure)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		assert.Equal(t, "/", c.Path)
		assert.Equal(t, 604800, c.MaxAge)

		rec = ts.do(t, http.MethodGet, "/auth/callback?code=c&state="+url.QueryEscape(state), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "replayed state")
		assert.Equal(t, "Invalid state", detail(t, rec))
	})

	t.Run("production cookie attributes", func(t *testing.T) {
		ts := newTestServer(t, func(cfg *shared.Config) { cfg.Server.Environment = "production" })
		c := ts.login(t)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
	})

	t.Run("callback errors", func(t *testing.T) {
		ts := newTestServer(t, nil)

		rec := ts.do(t, http.MethodGet, "/auth/callback?state=s", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = ts.do(t, http.MethodGet, "/auth/callback?error=access_denied&state=s", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Authorization failed: access_denied", detail(t, rec))

		ts.fake.TokenFunc = func(url.Values) (int, map[string]any) {
			return http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "secret upstream detail"}
		}
		rec = ts.do(t, http.MethodGet, "/auth/login", nil)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		u, _ := url.Parse(body["authorization_url"])

		rec = ts.do(t, http.MethodGet, "/auth/callback?code=c&state="+url.QueryEscape(u.Query().Get("state")), nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret upstream detail")
	})

	t.Run("me and logout", func(t *testing.T) {
		ts := newTestServer(t, nil)
		cookie := ts.login(t)

		rec := ts.do(t, http.MethodGet, "/auth/me", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		var me MeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
		assert.Equal(t, "spotify-user", me.SpotifyUserID)
		require.NotNil(t, me.DisplayName)
		assert.Equal(t, "Test Listener", *me.DisplayName)

		rec = ts.do(t, http.MethodPost, "/auth/logout", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
		cleared := rec.Result().Cookies()
		require.Len(t, cleared, 1)
		assert.Equal(t, -1, cleared[0].MaxAge)

		rec = ts.do(t, http.MethodGet, "/auth/me", nil, cookie)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = ts.do(t, http.MethodPost, "/auth/logout", nil)
		assert.Equal(t, http.StatusOK, rec.Code, "logout without a cookie succeeds")
	})

	t.Run("me without session", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodGet, "/auth/me", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Not authenticated", detail(t, rec))

		rec = ts.do(t, http.MethodGet, "/auth/me", nil, &http.Cookie{Name: "cur8_session", Value: "forged"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("redirect uri", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodGet, "/auth/redirect-uri", nil)
		assert.JSONEq(t, `{"redirect_uri":"http://127.0.0.1:8000/auth/callback"}`, rec.Body.String())
	})

	t.Run("wrong method", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, http.MethodGet, "/auth/logout", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestTrackRoutes(t *testing.T) {
	t.Run("next then swipe", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.fake.AddSavedTrack("t1", "One", "Artist A", "https://p.scdn.co/mp3-preview/t1")
		cookie := ts.login(t)

		rec := ts.do(t, http.MethodGet, "/tracks/next", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var track TrackResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &track))
		assert.Equal(t, "t1", track.SpotifyTrackID)
		require.NotNil(t, track.PreviewURL)

		rec = ts.do(t, http.MethodPost, "/tracks/swipe", strings.NewReader(`{"spotify_track_id":"t1","action":"remove"}`), cookie)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		ts.fake.Lock()
		assert.Equal(t, []string{"t1"}, ts.fake.Removed)
		ts.fake.Unlock()

		rec = ts.do(t, http.MethodPost, "/tracks/swipe", strings.NewReader(`{"spotify_track_id":"t1","action":"keep"}`), cookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Track not pending", detail(t, rec))

		rec = ts.do(t, http.MethodGet, "/tracks/next", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
	})

	t.Run("swipe validation", func(t *testing.T) {
		ts := newTestServer(t, nil)
		cookie := ts.login(t)

		tests := []struct {
			body   string
			status int
		}{
			{`{"spotify_track_id":"t1","action":"skip"}`, http.StatusBadRequest},
			{`{"action":"keep"}`, http.StatusBadRequest},
			{`not json`, http.StatusBadRequest},
			{`{"spotify_track_id":"missing","action":"keep"}`, http.StatusNotFound},
		}
		for _, tt := range tests {
			rec := ts.do(t, http.MethodPost, "/tracks/swipe", strings.NewReader(tt.body), cookie)
			assert.Equal(t, tt.status, rec.Code, tt.body)
		}
	})

	t.Run("saved pass-through", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.fake.AddSavedTrack("t1", "One", "Artist A", "")
		cookie := ts.login(t)

		rec := ts.do(t, http.MethodGet, "/tracks/saved?limit=5", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"total":1`)

		for _, q := range []string{"limit=0", "limit=51", "limit=x", "offset=-1"} {
			rec = ts.do(t, http.MethodGet, "/tracks/saved?"+q, nil, cookie)
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})

	t.Run("requires session", func(t *testing.T) {
		ts := newTestServer(t, nil)
		for _, path := range []string{"/tracks/next", "/tracks/saved"} {
			rec := ts.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		}
	})

	t.Run("rate limited after burst", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.fake.AddSavedTrack("t1", "One", "Artist A", "")
		cookie := ts.login(t)

		for i := range 30 {
			rec := ts.do(t, http.MethodGet, "/tracks/saved", nil, cookie)
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		}

		rec := ts.do(t, http.MethodGet, "/tracks/saved", nil, cookie)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "Too many Spotify requests; try shortly.", detail(t, rec))

		*ts.clock = ts.clock.Add(2 * time.Second)
		rec = ts.do(t, http.MethodGet, "/tracks/saved", nil, cookie)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("revoked refresh token", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.fake.TokenFunc = func(form url.Values) (int, map[string]any) {
			if form.Get("grant_type") == "refresh_token" {
				return http.StatusBadRequest, map[string]any{"error": "invalid_grant"}
			}
			return http.StatusOK, map[string]any{"access_token": "a", "token_type": "Bearer", "refresh_token": "r", "expires_in": 30}
		}
		cookie := ts.login(t)

		rec := ts.do(t, http.MethodGet, "/tracks/saved", nil, cookie)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/auth/logout", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "content-type")
		rec := httptest.NewRecorder()
		ts.srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("other origins get no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		ts.srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{auth.ErrInvalidOrExpiredState, http.StatusBadRequest},
		{auth.ErrUpstreamTokenExchangeFailed, http.StatusBadGateway},
		{auth.ErrNoRefreshToken, http.StatusBadGateway},
		{auth.ErrUpstreamProfileFetchFailed, http.StatusBadGateway},
		{auth.ErrMissingCredential, http.StatusUnauthorized},
		{auth.ErrRefreshFailed, http.StatusUnauthorized},
		{auth.ErrRateLimited, http.StatusTooManyRequests},
		{auth.ErrUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", shared.ErrTrackNotFound), http.StatusNotFound},
		{shared.ErrTrackNotPending, http.StatusBadRequest},
		{shared.ErrTokenInvalid, http.StatusUnauthorized},
		{shared.ErrRateLimited, http.StatusTooManyRequests},
		{shared.ErrUpstreamRejected, http.StatusBadGateway},
		{shared.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, _ := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(shared.NewLogger(io.Discard))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListenAndServe(t *testing.T) {
	ts := newTestServer(t, func(cfg *shared.Config) { cfg.Server.Port = 0 })
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- ts.srv.ListenAndServe(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
