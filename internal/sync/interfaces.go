// Package sync imports remote Mastodon-compatible data into the local store.
//
// The package contains two main components:
//
//   - [Resolver] maps one remote object (and everything it references) onto
//     local rows, deduplicating by remote id.
//   - [Engine] runs the sync passes: it fetches one page from the remote
//     server and feeds each object to a Resolver in its own transaction,
//     collecting a per-item [Report].
package sync

import (
	"context"

	"github.com/njoerd114/fedisync/internal/mastodon"
	"github.com/njoerd114/fedisync/internal/store"
)

// RemoteClient is the subset of the remote API used by the engine.
// Implemented by [mastodon.Client].
type RemoteClient interface {
	VerifyCredentials(ctx context.Context, creds mastodon.Credentials) (*mastodon.Account, error)
	GetAccount(ctx context.Context, creds mastodon.Credentials, id string) (*mastodon.Account, error)
	HomeTimeline(ctx context.Context, creds mastodon.Credentials, page mastodon.PageParams) ([]mastodon.Status, mastodon.Cursor, error)
	PublicTimeline(ctx context.Context, creds mastodon.Credentials, local bool, page mastodon.PageParams) ([]mastodon.Status, mastodon.Cursor, error)
	HashtagTimeline(ctx context.Context, creds mastodon.Credentials, tag string, page mastodon.PageParams) ([]mastodon.Status, mastodon.Cursor, error)
	Notifications(ctx context.Context, creds mastodon.Credentials, page mastodon.PageParams) ([]mastodon.Notification, mastodon.Cursor, error)
	Favourite(ctx context.Context, creds mastodon.Credentials, id string) (*mastodon.Status, error)
	Unfavourite(ctx context.Context, creds mastodon.Credentials, id string) (*mastodon.Status, error)
	Follow(ctx context.Context, creds mastodon.Credentials, id string) (*mastodon.Relationship, error)
	Unfollow(ctx context.Context, creds mastodon.Credentials, id string) (*mastodon.Relationship, error)
}

// Store provides the local database. Implemented by [store.Store].
type Store interface {
	store.Repository
	WithTx(ctx context.Context, fn func(store.Repository) error) error
}
