package server

import (
	"net/http"
	"time"

	"github.com/desertthunder/cur8/internal/shared"
)

// cookieConfig holds the session cookie attributes. Production deployments serve the front end
// from another site, which requires SameSite=None and therefore Secure.
type cookieConfig struct {
	name     string
	maxAge   int
	secure   bool
	sameSite http.SameSite
}

func newCookieConfig(cfg *shared.Config, ttl time.Duration) cookieConfig {
	c := cookieConfig{
		name:     cfg.Server.CookieName,
		maxAge:   int(ttl / time.Second),
		sameSite: http.SameSiteLaxMode,
	}
	if c.name == "" {
		c.name = "cur8_session"
	}
	if cfg.IsProduction() {
		c.secure = true
		c.sameSite = http.SameSiteNoneMode
	}
	return c
}

func (c cookieConfig) session(id string) *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    id,
		Path:     "/",
		MaxAge:   c.maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	}
}

func (c cookieConfig) cleared() *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	}
}
