package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/cur8/internal/auth"
	"github.com/desertthunder/cur8/internal/shared"
	"github.com/desertthunder/cur8/internal/store"
	"github.com/desertthunder/cur8/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, authentication, CORS, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers that own their routes.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                                               // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler, middleware ...Middleware) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                                                    // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request)                           // ServeHTTP implements http.Handler for the entire router
}

// Admitter decides whether a subject may make another upstream call.
type Admitter interface {
	Allow(ctx context.Context, subject string) (bool, error)
}

// Deps are the collaborators the server is built from.
type Deps struct {
	Config      *shared.Config
	DB          *sql.DB
	Store       store.Store
	Flow        *auth.Flow
	Limiter     Admitter
	Engine      tasks.SwipeEngine
	RedirectURI string
	Logger      *log.Logger
}

// Server serves the cur8 API.
type Server struct {
	deps    Deps
	cookies cookieConfig
	router  *BasicRouter
	logger  *log.Logger
}

// New builds the server and registers every route.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}

	s := &Server{
		deps:    deps,
		cookies: newCookieConfig(deps.Config, deps.Flow.SessionTTL()),
		router:  NewBasicRouter(),
		logger:  shared.WithLogger(deps.Logger, "component", "server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(Recoverer(s.logger), RequestLogger(s.logger), CORS(s.deps.Config.Origins()))

	session := RequireSession(s.deps.Flow, s.cookies.name, s.logger)
	limit := RateLimit(s.deps.Limiter, s.logger)

	r.Handle(http.MethodGet, "/health", http.HandlerFunc(s.handleHealth))
	r.Handle(http.MethodGet, "/auth/login", http.HandlerFunc(s.handleLogin))
	r.Handler(NewOAuthHandler(s.deps.Flow, s.cookies, s.deps.Config.Server.FrontendURL, s.logger))
	r.Handle(http.MethodGet, "/auth/me", http.HandlerFunc(s.handleMe), session)
	r.Handle(http.MethodPost, "/auth/logout", http.HandlerFunc(s.handleLogout))
	r.Handle(http.MethodGet, "/auth/redirect-uri", http.HandlerFunc(s.handleRedirectURI))

	r.Handle(http.MethodGet, "/tracks/next", http.HandlerFunc(s.handleNext), session, limit)
	r.Handle(http.MethodPost, "/tracks/swipe", http.HandlerFunc(s.handleSwipe), session, limit)
	r.Handle(http.MethodGet, "/tracks/saved", http.HandlerFunc(s.handleSaved), session, limit)
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx is canceled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.deps.Config.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr, "environment", s.deps.Config.Server.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
