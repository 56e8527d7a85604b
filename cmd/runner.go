package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/repositories"
	"github.com/desertthunder/amalgam/internal/services"
	"github.com/desertthunder/amalgam/internal/shared"
	"github.com/desertthunder/amalgam/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config          *shared.Config
	configPath      string
	httpClient      *http.Client
	logger          *log.Logger
	output          io.Writer
	input           io.Reader
	openBrowser     shared.BrowserOpener
	callbackTimeout time.Duration
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config          *shared.Config
	ConfigPath      string
	HTTPClient      *http.Client
	Logger          *log.Logger
	Output          io.Writer
	Input           io.Reader
	OpenBrowser     shared.BrowserOpener // defaults to [shared.OpenBrowser]
	CallbackTimeout time.Duration      // how long servers add waits for the redirect (default: 2m)
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = 2 * time.Minute
	}

	return &Runner{
		config:          opts.Config,
		configPath:      opts.ConfigPath,
		httpClient:      opts.HTTPClient,
		logger:          opts.Logger,
		output:          opts.Output,
		input:           opts.Input,
		openBrowser:     opts.OpenBrowser,
		callbackTimeout: opts.CallbackTimeout,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand, usersCommand, serversCommand, feedCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the dotenv file and the config file named by the root flags.
//
// A missing config file is not an error: defaults are used, with environment overrides applied.
// A config passed to [NewRunner] is kept as is.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := shared.LoadEnvFile(cmd.String("env-file")); err != nil {
		return ctx, err
	}

	if r.config == nil {
		path := cmd.String("config")
		config, err := shared.LoadConfig(path)
		switch {
		case errors.Is(err, shared.ErrMissingConfig):
			r.logger.Debug("config file not found, using defaults", "path", path)
			config = shared.DefaultConfig()
			config.ApplyEnv()
		case err != nil:
			return ctx, err
		}
		r.config = config
		r.configPath = path
	}

	level := cmd.String("log-level")
	if level == "" {
		level = r.config.Log.Level
	}
	shared.ApplyLogLevel(r.logger, level)

	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: r.config.HTTP.Timeout.Duration}
	}
	return ctx, nil
}

// SetLogger replaces the logger used by subsequently opened components.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// stack is the storage and engine graph built from the config for one command.
type stack struct {
	db       *sql.DB
	users    *repositories.UserRepository
	apps     *repositories.ApplicationRepository
	accounts *repositories.LinkedAccountRepository
	remote   *services.MastodonService
	links    *tasks.LinkEngine
	feed     *tasks.FeedEngine
}

func (s *stack) Close() error {
	return s.db.Close()
}

// open connects to the database, applies pending migrations and wires the engines.
func (r *Runner) open(ctx context.Context) (*stack, error) {
	if r.config == nil {
		return nil, fmt.Errorf("%w: configuration not loaded", shared.ErrMissingConfig)
	}
	cfg := r.config

	db, err := shared.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	remote := services.NewMastodonService(services.MastodonOptions{
		HTTPClient:  r.httpClient,
		Logger:      r.logger,
		Scheme:      cfg.Mastodon.Scheme,
		UserAgent:   cfg.HTTP.UserAgent,
		ClientName:  cfg.Mastodon.ClientName,
		Website:     cfg.Mastodon.Website,
		RedirectURI: cfg.Mastodon.RedirectURI,
		Scopes:      cfg.Mastodon.Scopes,
	})

	s := &stack{
		db:       db,
		users:    repositories.NewUserRepository(db),
		apps:     repositories.NewApplicationRepository(db),
		accounts: repositories.NewLinkedAccountRepository(db),
		remote:   remote,
	}
	s.links = tasks.NewLinkEngine(remote, s.apps, s.accounts, r.logger, tasks.LinkOptions{
		AuthURLAttempts:  cfg.Link.AuthURLAttempts,
		ExchangeAttempts: cfg.Link.ExchangeAttempts,
		TokenAttempts:    cfg.Link.TokenAttempts,
		Backoff:          cfg.Link.RetryBackoff.Duration,
	})
	s.feed = tasks.NewFeedEngine(s.accounts, remote, r.logger, tasks.FeedOptions{
		PageSize:       cfg.Feed.PageSize,
		MaxConcurrency: cfg.Feed.MaxConcurrency,
		RateLimit:      cfg.Feed.RateLimit,
		FailFast:       cfg.Feed.FailFast,
	})
	return s, nil
}

// lookupUser resolves the --user flag.
func (r *Runner) lookupUser(ctx context.Context, s *stack, cmd *cli.Command) (*models.User, error) {
	username := strings.TrimSpace(cmd.String("user"))
	if username == "" {
		return nil, fmt.Errorf("%w: --user is required", shared.ErrMissingArgument)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewError(shared.KindIntegrity, shared.MsgUserDoesNotExist+" "+username, err)
	}
	return user, err
}

func (r *Runner) readLine(prompt string) (string, error) {
	r.writePlain("%s", prompt)
	line, err := bufio.NewReader(r.input).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
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
