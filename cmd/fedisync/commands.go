package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/njoerd114/fedisync/internal/api"
	"github.com/njoerd114/fedisync/internal/mastodon"
	"github.com/njoerd114/fedisync/internal/model"
	syncp "github.com/njoerd114/fedisync/internal/sync"
)

// --- serve -------------------------------------------------------------------

func newServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP sync API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				srv := api.NewServer(a.engine, api.Options{RetryAttempts: a.cfg.Sync.RetryAttempts}, a.log)
				return srv.ListenAndServe(ctx, a.cfg.HTTP.ListenAddr)
			})
		},
	}
}

// --- sync --------------------------------------------------------------------

// SyncOptions holds flags for the sync subcommands.
type SyncOptions struct {
	*RootOptions
	Account  string
	Limit    int
	Timeline string
	Tag      string
	MaxID    string
}

func newSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import one page from the linked remote account",
		Long: `Import one page of remote data for a linked local account.

Objects already imported are recognised by their remote id and not
duplicated, so overlapping pages are safe to re-run.

Examples:
  fedisync sync profile --account alice
  fedisync sync timeline --account alice --timeline hashtag --tag golang
  fedisync sync notifications --account alice --limit 40`,
	}
	cmd.PersistentFlags().StringVar(&opts.Account, "account", "", "local account id or handle (required)")
	_ = cmd.MarkPersistentFlagRequired("account")

	cmd.AddCommand(&cobra.Command{
		Use:   "profile",
		Short: "Refresh the linked account's own profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, opts, func(ctx context.Context, e *syncp.Engine, acct *model.Account) (syncp.Report, error) {
				return e.SyncProfile(ctx, acct.ID)
			})
		},
	})

	timeline := &cobra.Command{
		Use:   "timeline",
		Short: "Import a timeline page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := syncp.TimelineQuery{
				Timeline: syncp.Timeline(opts.Timeline),
				Tag:      opts.Tag,
				Limit:    opts.Limit,
				MaxID:    opts.MaxID,
			}
			return runSync(cmd, opts, func(ctx context.Context, e *syncp.Engine, acct *model.Account) (syncp.Report, error) {
				return e.SyncTimeline(ctx, acct.ID, q)
			})
		},
	}
	timeline.Flags().StringVar(&opts.Timeline, "timeline", string(syncp.TimelineHome), "home, public, local or hashtag")
	timeline.Flags().StringVar(&opts.Tag, "tag", "", "hashtag for --timeline hashtag")
	timeline.Flags().StringVar(&opts.MaxID, "max-id", "", "only items older than this remote id")
	timeline.Flags().IntVar(&opts.Limit, "limit", 0, "page size (default from config, max 40)")
	cmd.AddCommand(timeline)

	notifications := &cobra.Command{
		Use:   "notifications",
		Short: "Import a notifications page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, opts, func(ctx context.Context, e *syncp.Engine, acct *model.Account) (syncp.Report, error) {
				return e.SyncNotifications(ctx, acct.ID, opts.Limit)
			})
		},
	}
	notifications.Flags().IntVar(&opts.Limit, "limit", 0, "page size (default from config, max 40)")
	cmd.AddCommand(notifications)

	return cmd
}

type passFunc func(context.Context, *syncp.Engine, *model.Account) (syncp.Report, error)

// runSync resolves the account, runs pass with retries and prints the report.
// Only a failure of the whole pass makes the command fail.
func runSync(cmd *cobra.Command, opts *SyncOptions, pass passFunc) error {
	return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app) error {
		acct, err := a.lookupAccount(ctx, opts.Account)
		if err != nil {
			return err
		}

		var rep syncp.Report
		err = mastodon.Retry(ctx, a.cfg.Sync.RetryAttempts, func() error {
			var err error
			rep, err = pass(ctx, a.engine, acct)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s sync for %s: %w", cmd.Name(), acct.Handle, err)
		}

		printReport(cmd.OutOrStdout(), rep)
		return nil
	})
}

func printReport(w io.Writer, rep syncp.Report) {
	fmt.Fprintf(w, "%s: %d processed, %d failed\n", rep.Kind, rep.Processed, rep.Failed)
	for _, it := range rep.Items {
		if it.Err != nil {
			fmt.Fprintf(w, "  ✗ %s: %v\n", it.RemoteID, it.Err)
		}
	}
	if rep.NextMaxID != "" {
		fmt.Fprintf(w, "next page: --max-id %s\n", rep.NextMaxID)
	}
}

// --- link --------------------------------------------------------------------

// LinkOptions holds flags for the link command.
type LinkOptions struct {
	*RootOptions
	Account  string
	Instance string
	Token    string
}

func newLinkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LinkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link a local account to a remote account",
		Long: `Verify an access token against a remote server and store it on a
local account. The token is stored as given.

Example:
  fedisync link --account alice --instance https://mastodon.social --token $TOKEN`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app) error {
				acct, err := a.lookupAccount(ctx, opts.Account)
				if err != nil {
					return err
				}
				linked, err := a.engine.Link(ctx, acct.ID, mastodon.Credentials{
					InstanceURL: opts.Instance,
					AccessToken: opts.Token,
				})
				if err != nil {
					return fmt.Errorf("linking %s: %w", acct.Handle, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s linked to remote account %s on %s\n",
					linked.Handle, linked.RemoteAccountID, linked.RemoteInstanceURL)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Account, "account", "", "local account id or handle (required)")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "remote server base URL (required)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "remote access token (required)")
	for _, name := range []string{"account", "instance", "token"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// --- account -----------------------------------------------------------------

// AccountOptions holds flags for the account create command.
type AccountOptions struct {
	*RootOptions
	Handle      string
	Email       string
	DisplayName string
}

func newAccountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage local accounts",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a local account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts.RootOptions, func(ctx context.Context, a *app) error {
				acct := &model.Account{
					Handle:      opts.Handle,
					Email:       opts.Email,
					DisplayName: opts.DisplayName,
				}
				if err := a.store.CreateAccount(ctx, acct); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", acct.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&opts.Handle, "handle", "", "local handle (required)")
	create.Flags().StringVar(&opts.Email, "email", "", "email address (required)")
	create.Flags().StringVar(&opts.DisplayName, "display-name", "", "display name")
	_ = create.MarkFlagRequired("handle")
	_ = create.MarkFlagRequired("email")
	cmd.AddCommand(create)

	return cmd
}
