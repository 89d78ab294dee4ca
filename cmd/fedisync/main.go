// fedisync imports statuses, accounts and notifications from a
// Mastodon-compatible server into the local SQLite store.
//
// Usage:
//
//	fedisync account create --handle alice --email alice@example.com
//	fedisync link --account alice --instance https://mastodon.social --token <token>
//	fedisync sync timeline --account alice [--timeline home|public|local|hashtag] [--tag go]
//	fedisync sync notifications --account alice [--limit 40]
//	fedisync sync profile --account alice
//	fedisync serve [--config <path>]          # HTTP trigger API
//	fedisync version
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}
