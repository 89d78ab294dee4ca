// Package store manages the SQLite database holding local accounts, posts and
// everything imported alongside them.
//
// Only this package may open or query the database. Other packages receive a
// [*Store] (or the [Repository] handed to [Store.WithTx]) and call its methods.
// Lookups return (nil, nil) when no row matches.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pressly/goose/v3"

	"github.com/njoerd114/fedisync/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Repository is the read/write surface used by the sync engine. [*Store]
// implements it directly (autocommit) and [Store.WithTx] passes a
// transaction-scoped implementation to its callback.
type Repository interface {
	CreateAccount(ctx context.Context, a *model.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error)
	GetAccountByRemoteID(ctx context.Context, remoteID string) (*model.Account, error)
	UpdateAccountCounts(ctx context.Context, id uuid.UUID, followers, following, posts int) error
	UpdateAccountProfile(ctx context.Context, a *model.Account) error
	SetAccountRemote(ctx context.Context, id uuid.UUID, remoteAccountID, instanceURL, accessToken string) error

	CreatePost(ctx context.Context, p *model.Post) error
	GetPost(ctx context.Context, id uuid.UUID) (*model.Post, error)
	GetPostByRemoteID(ctx context.Context, remoteID string) (*model.Post, error)
	UpdatePostCounts(ctx context.Context, id uuid.UUID, likes, reblogs, replies int) error
	AdjustLikesCount(ctx context.Context, id uuid.UUID, delta int) error
	LinkPendingReplies(ctx context.Context, parentID uuid.UUID, parentRemoteID string) (int64, error)

	CreateMediaAttachment(ctx context.Context, m *model.MediaAttachment) error
	EnsureHashtag(ctx context.Context, name string) (*model.Hashtag, error)
	LinkPostHashtag(ctx context.Context, postID, hashtagID uuid.UUID) (bool, error)
	IncrementHashtagUsage(ctx context.Context, hashtagID uuid.UUID) error
	CreateMention(ctx context.Context, m *model.Mention) error
	CreatePoll(ctx context.Context, p *model.Poll) error
	CreateNotification(ctx context.Context, n *model.Notification) (bool, error)

	HasLike(ctx context.Context, accountID, postID uuid.UUID) (bool, error)
	CreateLike(ctx context.Context, l *model.Like) error
	DeleteLike(ctx context.Context, accountID, postID uuid.UUID) (bool, error)
	HasFollow(ctx context.Context, accountID, targetID uuid.UUID) (bool, error)
	CreateFollow(ctx context.Context, f *model.Follow) error
	DeleteFollow(ctx context.Context, accountID, targetID uuid.UUID) (bool, error)
}

// querier matches both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repo implements Repository on top of a querier.
type repo struct {
	q querier
}

// Store is the SQLite-backed repository.
type Store struct {
	repo
	db *sql.DB
}

// DefaultDBPath returns the default path for the database:
// ~/.local/share/fedisync/fedisync.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "fedisync", "fedisync.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies pending
// migrations and configures WAL mode.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL. Callers of WithTx must
	// not touch the Store itself until the callback returns.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return &Store{repo: repo{q: db}, db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a single transaction. The transaction commits when fn
// returns nil and rolls back otherwise, so a failed import leaves no rows.
func (s *Store) WithTx(ctx context.Context, fn func(Repository) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&repo{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// migrate applies the embedded goose migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return err
	}
	return nil
}

// Count returns the number of rows in one of the store's tables.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case "accounts", "posts", "media_attachments", "hashtags", "post_hashtags",
		"mentions", "polls", "poll_options", "notifications", "likes", "follows":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so scan helpers can be reused.
type scanner interface {
	Scan(dest ...any) error
}

// nullable maps "" to SQL NULL so UNIQUE correlation columns allow many
// uncorrelated rows.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newID fills *id with a fresh UUID when it is unset.
func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
