package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/cur8/internal/auth"
	"github.com/desertthunder/cur8/internal/shared"
)

type errorBody struct {
	Detail string `json:"detail"`
}

// statusFor maps an error to its HTTP status and client-facing detail.
// Upstream bodies and internal causes are never echoed to the client.
func statusFor(err error) (int, string) {
	var aerr *auth.Error
	if errors.As(err, &aerr) {
		switch aerr.Kind {
		case auth.KindInvalidOrExpiredState:
			return http.StatusBadRequest, "Invalid state"
		case auth.KindUpstreamTokenExchangeFailed:
			return http.StatusBadGateway, "Spotify token exchange failed"
		case auth.KindNoRefreshToken:
			return http.StatusBadGateway, "No refresh token returned from Spotify"
		case auth.KindUpstreamProfileFetchFailed:
			return http.StatusBadGateway, "Failed to fetch Spotify profile"
		case auth.KindMissingCredential:
			return http.StatusUnauthorized, "No Spotify credential; log in again"
		case auth.KindRefreshFailed:
			return http.StatusUnauthorized, "Spotify authorization expired; log in again"
		case auth.KindRateLimited:
			return http.StatusTooManyRequests, "Too many Spotify requests; try shortly."
		case auth.KindUnauthenticated:
			return http.StatusUnauthorized, "Not authenticated"
		}
	}

	switch {
	case errors.Is(err, shared.ErrTrackNotFound):
		return http.StatusNotFound, "Track not found"
	case errors.Is(err, shared.ErrTrackNotPending):
		return http.StatusBadRequest, "Track not pending"
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, shared.ErrTokenInvalid):
		return http.StatusUnauthorized, "Spotify rejected the access token; log in again"
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many Spotify requests; try shortly."
	case errors.Is(err, shared.ErrUpstreamRejected), errors.Is(err, shared.ErrAPIRequest):
		return http.StatusBadGateway, "Spotify request failed"
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "Service unavailable"
	}
	return http.StatusInternalServerError, "Internal server error"
}

// writeError logs err and writes its mapped status. Server-side faults log at error level.
func writeError(w http.ResponseWriter, r *http.Request, logger *log.Logger, err error) {
	status, detail := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeDetail writes a 4xx with an explicit detail message.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
