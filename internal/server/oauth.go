package server

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/cur8/internal/auth"
	"github.com/desertthunder/cur8/internal/shared"
)

// OAuthHandler handles the Spotify redirect back to /auth/callback.
// Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	flow        *auth.Flow
	cookies     cookieConfig
	frontendURL string
	logger      *log.Logger
}

// NewOAuthHandler creates the callback handler. Successful logins are redirected to frontendURL.
func NewOAuthHandler(flow *auth.Flow, cookies cookieConfig, frontendURL string, logger *log.Logger) *OAuthHandler {
	return &OAuthHandler{
		flow:        flow,
		cookies:     cookies,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/auth/callback"}
}

// ServeHTTP handles the OAuth callback request.
//
// The state is checked and consumed by [auth.Flow.Callback]; a replayed callback gets 400.
// On success the session cookie is set and the browser is sent to the front end with 302.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		h.logger.Warn("authorization denied", "error", errParam, "description", q.Get("error_description"))
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Authorization failed: %s", errParam))
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeError(w, r, h.logger, fmt.Errorf("%w: code and state are required", shared.ErrMissingArgument))
		return
	}

	sessionID, err := h.flow.Callback(r.Context(), code, state)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, h.cookies.session(sessionID))
	http.Redirect(w, r, h.frontendURL, http.StatusFound)
}
