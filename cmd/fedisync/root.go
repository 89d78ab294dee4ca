package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/njoerd114/fedisync/internal/config"
	"github.com/njoerd114/fedisync/internal/mastodon"
	"github.com/njoerd114/fedisync/internal/model"
	"github.com/njoerd114/fedisync/internal/store"
	syncp "github.com/njoerd114/fedisync/internal/sync"
	"github.com/njoerd114/fedisync/internal/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "fedisync",
		Short:         "Import a Mastodon-compatible account into the local store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.config/fedisync/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newLinkCommand(opts))
	cmd.AddCommand(newAccountCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fedisync %s\n", version)
		},
	}
}

// --- Shared wiring -----------------------------------------------------------

// app bundles everything a command needs. Call close when done.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	store  *store.Store
	engine *syncp.Engine

	closers []func()
}

func newApp(ctx context.Context, opts *RootOptions, stderr io.Writer) (*app, error) {
	// --- Logger --------------------------------------------------------------

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	a := &app{log: logger}

	// --- Config --------------------------------------------------------------

	cfg, err := loadConfig(opts.ConfigPath, logger)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg

	// --- Telemetry (optional) ------------------------------------------------

	if cfg.Telemetry != nil {
		shutdownTel, err := telemetry.Setup(ctx, telemetry.Config{
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
			Insecure:       cfg.Telemetry.Insecure,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
			Headers:        cfg.Telemetry.Headers,
			MetricInterval: cfg.Telemetry.MetricInterval,
		})
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			a.closers = append(a.closers, func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			})
		}
	}

	// --- Store ---------------------------------------------------------------

	dbPath := cfg.Database.Path
	if dbPath == "" {
		if dbPath, err = store.DefaultDBPath(); err != nil {
			a.close()
			return nil, fmt.Errorf("resolving database path: %w", err)
		}
	}
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening database at %q: %w", dbPath, err)
	}
	a.store = st
	a.closers = append(a.closers, func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("closing database", "error", closeErr)
		}
	})
	logger.Debug("database opened", "path", dbPath)

	// --- Sync engine ---------------------------------------------------------

	client := mastodon.NewClient(&http.Client{Timeout: cfg.Remote.Timeout}, cfg.Remote.UserAgent)
	a.engine = syncp.NewEngine(client, st, syncp.Options{
		PageLimit: cfg.Sync.PageLimit,
		Resolver:  syncp.ResolverOptions{RefreshOnReimport: cfg.Sync.RefreshOnReimport},
	}, logger)

	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// loadConfig reads the config file. Without --config a missing default file
// is not an error and built-in defaults apply.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			logger.Debug("no config file, using defaults", "path", path)
			return config.Default(), nil
		}
		return nil, fmt.Errorf("loading config from %q: %w", path, err)
	}
	logger.Debug("config loaded", "path", path, "page_limit", cfg.Sync.PageLimit)
	return cfg, nil
}

// lookupAccount accepts a local account id or handle.
func (a *app) lookupAccount(ctx context.Context, ref string) (*model.Account, error) {
	var acct *model.Account
	var err error
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		acct, err = a.store.GetAccount(ctx, id)
	} else {
		acct, err = a.store.GetAccountByHandle(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: %q", syncp.ErrAccountNotFound, ref)
	}
	return acct, nil
}

// withApp builds the app for one command invocation.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
