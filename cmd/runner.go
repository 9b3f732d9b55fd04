package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cur8/internal/auth"
	"github.com/desertthunder/cur8/internal/models"
	"github.com/desertthunder/cur8/internal/ratelimit"
	"github.com/desertthunder/cur8/internal/services"
	"github.com/desertthunder/cur8/internal/shared"
	"github.com/desertthunder/cur8/internal/store"
	"github.com/desertthunder/cur8/internal/tasks"
	"github.com/desertthunder/cur8/internal/ui"
)

const version = "0.1.0"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	sessionPath string
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	openBrowser func(string) error

	deps *deps
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is resolved from the --config file and the environment when a command runs.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	SessionPath string
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	OpenBrowser func(string) error
}

// userEngine is the engine surface the CLI and TUI drive for the logged-in user.
type userEngine interface {
	ui.Engine
	BackfillPreviews(ctx context.Context, userID string, progress chan<- tasks.ProgressUpdate) (*tasks.BackfillResult, error)
}

// deps are the long-lived collaborators built on first use and released by [Runner.Close].
type deps struct {
	db      *sql.DB
	store   store.Store
	spotify *services.SpotifyService
	flow    *auth.Flow
	creds   *auth.CredentialManager
	engine  *tasks.LibraryEngine

	// limiter is nil when Redis could not be reached; limiterErr says why.
	limiter      *ratelimit.Limiter
	limiterErr   error
	closeLimiter func() error

	// user is engine gated by limiter when there is one.
	user userEngine
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		sessionPath: opts.SessionPath,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: opts.OpenBrowser,
	}
}

// App builds the root command.
func (r *Runner) App() *cli.Command {
	return &cli.Command{
		Name:    "cur8",
		Usage:   "Swipe through your Spotify saved tracks and prune the library",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "session-file",
				Usage: "Where the CLI keeps its login session (default: ~/.cur8/session)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before:   r.before,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand, authCommand, tracksCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before resolves configuration and the session file from the global flags.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" && r.configPath == "" {
		r.configPath = path
	}
	if path := cmd.String("session-file"); path != "" {
		r.sessionPath = path
	}

	if r.config == nil {
		config, err := shared.ResolveConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	shared.ConfigureLogger(r.logger, r.config)
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}

// SetLogger replaces the logger used by every component built afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// open builds the database, store, Spotify client, auth flow and library engine once.
func (r *Runner) open(ctx context.Context) (*deps, error) {
	if r.deps != nil {
		return r.deps, nil
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}

	db, err := r.openDatabase()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, r.config)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s store: %w", r.config.Store.Backend, err)
	}

	spotify, err := services.NewSpotifyService(r.config, r.logger)
	if err != nil {
		db.Close()
		st.Close()
		return nil, err
	}
	if r.httpClient != http.DefaultClient {
		spotify.WithHTTPClient(r.httpClient)
	}

	creds := auth.NewCredentialManager(db, spotify, r.logger).WithRefreshTimeout(r.config.UpstreamTimeout())
	d := &deps{
		db:           db,
		store:        st,
		spotify:      spotify,
		flow:         auth.NewFlow(spotify, db, st, r.logger),
		creds:        creds,
		engine:       tasks.NewLibraryEngine(db, creds, spotify, tasks.Options{}, r.logger),
		closeLimiter: func() error { return nil },
	}

	client, closeClient, err := r.limiterClient(ctx, st)
	if err != nil {
		r.logger.Warn("rate limiter unavailable, Spotify calls from this command are not gated", "error", err)
		d.limiterErr = err
		d.user = d.engine
	} else {
		d.limiter = ratelimit.New(client, r.config.RateLimit, r.config.Redis.KeyPrefix)
		d.closeLimiter = closeClient
		d.user = tasks.NewGatedEngine(d.engine, d.limiter)
	}

	r.deps = d
	return r.deps, nil
}

func (r *Runner) openDatabase() (*sql.DB, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// Close releases whatever [Runner.open] built. Safe to call more than once.
func (r *Runner) Close() error {
	if r.deps == nil {
		return nil
	}
	d := r.deps
	r.deps = nil
	return errors.Join(d.closeLimiter(), d.store.Close(), d.db.Close())
}

// sessionFile returns the path of the CLI session file.
func (r *Runner) sessionFile() (string, error) {
	if r.sessionPath != "" {
		return r.sessionPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".cur8", "session"), nil
}

func (r *Runner) saveSession(id string) (string, error) {
	path, err := r.sessionFile()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write session file: %w", err)
	}
	return path, nil
}

// loadSession returns the saved session ID, or an unauthenticated error when there is none.
func (r *Runner) loadSession() (string, error) {
	path, err := r.sessionFile()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: run 'cur8 auth login' first", shared.ErrNotAuthenticated)
	} else if err != nil {
		return "", fmt.Errorf("failed to read session file: %w", err)
	}

	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", fmt.Errorf("%w: session file %s is empty", shared.ErrNotAuthenticated, path)
	}
	return id, nil
}

// currentUser resolves the saved session to its user.
func (r *Runner) currentUser(ctx context.Context) (*deps, *models.User, error) {
	d, err := r.open(ctx)
	if err != nil {
		return nil, nil, err
	}

	sessionID, err := r.loadSession()
	if err != nil {
		return nil, nil, err
	}

	user, err := d.flow.CurrentUser(ctx, sessionID)
	if errors.Is(err, auth.ErrUnauthenticated) {
		return nil, nil, fmt.Errorf("%w: session expired, run 'cur8 auth login'", shared.ErrNotAuthenticated)
	} else if err != nil {
		return nil, nil, err
	}
	return d, user, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
