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
	"github.com/desertthunder/bcx/internal/services"
	"github.com/desertthunder/bcx/internal/shared"
	"github.com/desertthunder/bcx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// MailboxFactory connects to the configured mail account.
type MailboxFactory func(ctx context.Context) (services.Mailbox, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	secrets    shared.SecretStore
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	mailbox    MailboxFactory
	resolver   tasks.EmbedResolver
	browser    func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Secrets    shared.SecretStore
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	Mailbox    MailboxFactory
	Resolver   tasks.EmbedResolver
	Browser    func(string) error
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
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Browser == nil {
		opts.Browser = shared.OpenBrowser
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		secrets:    opts.Secrets,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		mailbox:    opts.Mailbox,
		resolver:   opts.Resolver,
		browser:    opts.Browser,
	}
	if r.mailbox == nil {
		r.mailbox = r.dialMailbox
	}
	return r
}

// SetLogger replaces the logger, e.g. with a file logger while the terminal UI owns the screen.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, mailCommand, siteCommand, syncCommand, cacheCommand, collectionCommand, browseCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig is the root Before hook: it reads --config (defaults when the file is missing) and applies --debug.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	path := cmd.String("config")
	config, err := shared.LoadConfigOrDefault(path)
	if err != nil {
		return ctx, err
	}
	r.config = config
	r.configPath = path
	r.logger.Debug("configuration loaded", "path", path)
	return ctx, nil
}

// secretStore opens the OS keyring on first use.
func (r *Runner) secretStore() (shared.SecretStore, error) {
	if r.secrets != nil {
		return r.secrets, nil
	}
	store, err := shared.OpenKeyring()
	if err != nil {
		return nil, err
	}
	r.secrets = store
	return store, nil
}

// dialMailbox builds the IMAP mailbox for the configured authentication mode.
func (r *Runner) dialMailbox(ctx context.Context) (services.Mailbox, error) {
	mail := r.config.Mail
	if mail.Username == "" {
		return nil, fmt.Errorf("%w: mail.username is not set", shared.ErrMissingCredentials)
	}

	if mail.Auth == "oauth" {
		oauthConfig, err := services.NewOAuthConfig(r.config.OAuth)
		if err != nil {
			return nil, err
		}
		store, err := r.secretStore()
		if err != nil {
			return nil, err
		}
		refresh, err := store.Get(shared.RefreshTokenKey(mail.Server, mail.Username))
		if err != nil {
			return nil, fmt.Errorf("%w: run bcx auth oauth first: %v", shared.ErrNoRefreshToken, err)
		}
		tokens, err := services.RefreshTokenSource(ctx, oauthConfig, refresh)
		if err != nil {
			return nil, err
		}
		return services.NewOAuthMailbox(mail, tokens), nil
	}

	store, err := r.secretStore()
	if err != nil {
		r.logger.Debug("keyring unavailable", "error", err)
		store = nil
	}
	password, err := shared.ResolvePassword("", mail, store)
	if err != nil {
		return nil, err
	}
	return services.NewPasswordMailbox(mail, password), nil
}

func (r *Runner) embedResolver() tasks.EmbedResolver {
	if r.resolver == nil {
		r.resolver = services.NewBandcampClient(r.config.Bandcamp, services.WithHTTPClient(r.httpClient))
	}
	return r.resolver
}

func (r *Runner) openDatabase() (*sql.DB, error) {
	db, err := shared.OpenMigrated(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
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
