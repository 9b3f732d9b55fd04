package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cur8/internal/auth"
	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/server"
	"github.com/desertthunder/cur8/internal/shared"
)

const defaultLoginTimeout = 2 * time.Minute

type loginResult struct {
	sessionID string
	err       error
}

// loginCallback completes the flow when Spotify redirects the browser back to the CLI.
//
// Requests that do not carry the state issued for this login are rejected without ending the
// wait. Only the first matching callback is reported; later ones still get a response.
type loginCallback struct {
	flow   *auth.Flow
	state  string
	result chan loginResult
	logger *log.Logger
}

func newLoginCallback(flow *auth.Flow, state string, logger *log.Logger) *loginCallback {
	return &loginCallback{flow: flow, state: state, result: make(chan loginResult, 1), logger: logger}
}

func (c *loginCallback) deliver(res loginResult) {
	select {
	case c.result <- res:
	default:
	}
}

func (c *loginCallback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if subtle.ConstantTimeCompare([]byte(q.Get("state")), []byte(c.state)) != 1 {
		c.logger.Warn("ignoring callback with unknown state", "remote", r.RemoteAddr)
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		c.deliver(loginResult{err: fmt.Errorf("%w: authorization denied: %s", shared.ErrNotAuthenticated, errParam)})
		return
	}

	sessionID, err := c.flow.Callback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		c.logger.Warn("callback failed", "error", err)
		http.Error(w, "Authorization failed. Return to the terminal for details.", http.StatusBadRequest)
		c.deliver(loginResult{err: err})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>cur8 is connected</h1><p>You can close this window.</p></body></html>")
	c.deliver(loginResult{sessionID: sessionID})
}

// AuthLogin performs the PKCE authorization flow with a local callback server.
//
// The server listens on the host and path of spotify.redirect_uri, so the URI registered with
// Spotify must point at this machine.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if r.config.Spotify.ClientID == "" {
		return fmt.Errorf("%w: spotify.client_id must be set in config.toml or SPOTIFY_CLIENT_ID", shared.ErrMissingCredentials)
	}

	redirect, err := url.Parse(r.config.Spotify.RedirectURI)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: invalid spotify.redirect_uri %q", shared.ErrInvalidConfig, r.config.Spotify.RedirectURI)
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	authURL, err := d.flow.Login(ctx)
	if err != nil {
		return err
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		return fmt.Errorf("invalid authorization url: %w", err)
	}
	callback := newLoginCallback(d.flow, parsed.Query().Get("state"), r.logger)
	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger))
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}
	router.Handle(http.MethodGet, callbackPath, callback)

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}

	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", redirect.Host)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		if err := r.openBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = defaultLoginTimeout
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result loginResult
	select {
	case result = <-callback.result:
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timer.C:
		return fmt.Errorf("%w: authorization timed out after %s", shared.ErrNotAuthenticated, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if result.err != nil {
		return fmt.Errorf("authorization failed: %w", result.err)
	}

	user, err := d.flow.CurrentUser(ctx, result.sessionID)
	if err != nil {
		return err
	}

	path, err := r.saveSession(result.sessionID)
	if err != nil {
		return err
	}

	r.writePlainln("✓ Connected as %s", displayName(user))
	r.writePlain("✓ Session saved to %s\n\n", path)
	r.writePlain("You can now use: cur8 tracks sync, cur8 tui\n")
	return nil
}

// AuthLogout revokes the saved session and removes the session file.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	sessionID, err := r.loadSession()
	if errors.Is(err, shared.ErrNotAuthenticated) {
		return r.writePlain("Not logged in\n")
	} else if err != nil {
		return err
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}
	if err := d.flow.Logout(ctx, sessionID); err != nil {
		return err
	}

	path, _ := r.sessionFile()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return r.writePlain("✓ Logged out\n")
}

type statusOutput struct {
	SpotifyUserID string         `json:"spotify_user_id"`
	DisplayName   string         `json:"display_name,omitempty"`
	Counts        map[string]int `json:"counts"`
}

// AuthStatus shows the account behind the saved session and its queue.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	d, user, err := r.currentUser(ctx)
	if err != nil {
		return err
	}

	counts, err := d.engine.Counts(user.ID())
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := statusOutput{SpotifyUserID: user.SpotifyUserID(), DisplayName: user.DisplayName(), Counts: map[string]int{}}
		for decision, n := range counts {
			out.Counts[string(decision)] = n
		}
		return r.writeJSON(out, true)
	}

	r.writePlain("✓ Connected as %s (%s)\n", displayName(user), user.SpotifyUserID())
	r.writePlain("Kept: %d  Removed: %d  Pending: %d\n", counts[models.Kept], counts[models.Removed], counts[models.Pending])
	return nil
}

func displayName(u *models.User) string {
	if u.DisplayName() != "" {
		return u.DisplayName()
	}
	return u.SpotifyUserID()
}
