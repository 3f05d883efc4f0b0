package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/munshid/nasheedbox/internal/repositories"
	"github.com/munshid/nasheedbox/internal/services"
	"github.com/munshid/nasheedbox/internal/session"
	"github.com/munshid/nasheedbox/internal/shared"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger swaps the runner's logger (used when the TUI redirects logs to a file).
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// appSession bundles the wired client stack behind a single Close.
type appSession struct {
	db     *sql.DB
	cache  *repositories.EntryCache
	rest   *services.RestClient
	bridge *session.Bridge
	rec    *session.Reconciler
}

func (s *appSession) Close() {
	s.rec.Close()
	s.db.Close()
}

// openSession wires the local cache database, the identity provider client
// and the row store client into a session reconciler. Callers own the
// returned session and must Close it.
func (r *Runner) openSession(ctx context.Context) (*appSession, error) {
	if r.config.Provider.URL == "" || r.config.Provider.AnonKey == "" {
		return nil, fmt.Errorf("%w: provider url and anon_key must be set, run 'nasheedbox setup' first", shared.ErrMissingConfig)
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	kv := repositories.NewKVRepository(db)
	cache := repositories.NewEntryCache(kv)
	auth := services.NewGoTrueClient(r.config.Provider.URL, r.config.Provider.AnonKey, r.httpClient)
	rest := services.NewRestClient(r.config.Provider.URL, r.config.Provider.AnonKey, r.httpClient)
	bridge := session.NewBridge(auth, cache, rest, r.logger)
	rec := session.NewReconciler(session.SessionContext{
		Bridge:  bridge,
		Entries: rest,
		Cache:   cache,
		Logger:  r.logger,
	})

	return &appSession{
		db:     db,
		cache:  cache,
		rest:   rest,
		bridge: bridge,
		rec:    rec,
	}, nil
}

// requireUser bootstraps the session and fails unless a confirmed identity
// is available.
func (r *Runner) requireUser(ctx context.Context, sess *appSession) (session.State, error) {
	sess.rec.Bootstrap(ctx)
	state := sess.rec.Snapshot()
	if state.Phase != session.Authenticated || state.Speculative {
		return state, fmt.Errorf("%w: sign in with 'nasheedbox auth login'", shared.ErrNotAuthenticated)
	}
	return state, nil
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
