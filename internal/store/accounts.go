package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/njoerd114/fedisync/internal/model"
)

const accountColumns = `
	id, email, handle, display_name, bio, avatar_url, header_url,
	followers_count, following_count, posts_count,
	remote_account_id, remote_instance_url, remote_access_token,
	created_at, updated_at`

// CreateAccount inserts a new account. A zero ID is replaced with a fresh
// UUID and zero timestamps with the current time.
func (r *repo) CreateAccount(ctx context.Context, a *model.Account) error {
	newID(&a.ID)
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}

	const q = `INSERT INTO accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q,
		a.ID,
		a.Email,
		a.Handle,
		a.DisplayName,
		a.Bio,
		a.AvatarURL,
		a.HeaderURL,
		a.FollowersCount,
		a.FollowingCount,
		a.PostsCount,
		nullable(a.RemoteAccountID),
		a.RemoteInstanceURL,
		a.RemoteAccessToken,
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting account %q: %w", a.Handle, err)
	}
	return nil
}

// GetAccount returns the account with the given id, or (nil, nil).
func (r *repo) GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetAccountByRemoteID returns the account correlated with the remote id,
// or (nil, nil).
func (r *repo) GetAccountByRemoteID(ctx context.Context, remoteID string) (*model.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE remote_account_id = ?`, remoteID)
	return scanAccount(row)
}

// GetAccountByHandle returns the first account with the given handle, or
// (nil, nil).
func (r *repo) GetAccountByHandle(ctx context.Context, handle string) (*model.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE handle = ? ORDER BY created_at LIMIT 1`, handle)
	return scanAccount(row)
}

// UpdateAccountCounts overwrites the mirrored follower, following and post
// counters.
func (r *repo) UpdateAccountCounts(ctx context.Context, id uuid.UUID, followers, following, posts int) error {
	const q = `
		UPDATE accounts
		SET followers_count = ?, following_count = ?, posts_count = ?, updated_at = ?
		WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, q, followers, following, posts, formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("updating counts for account %s: %w", id, err)
	}
	return nil
}

// UpdateAccountProfile overwrites the profile fields and counters of a.
// Credentials are left untouched.
func (r *repo) UpdateAccountProfile(ctx context.Context, a *model.Account) error {
	a.UpdatedAt = time.Now().UTC()
	const q = `
		UPDATE accounts SET
		    display_name      = ?,
		    bio               = ?,
		    avatar_url        = ?,
		    header_url        = ?,
		    followers_count   = ?,
		    following_count   = ?,
		    posts_count       = ?,
		    remote_account_id = ?,
		    updated_at        = ?
		WHERE id = ?`
	_, err := r.q.ExecContext(ctx, q,
		a.DisplayName,
		a.Bio,
		a.AvatarURL,
		a.HeaderURL,
		a.FollowersCount,
		a.FollowingCount,
		a.PostsCount,
		nullable(a.RemoteAccountID),
		formatTime(a.UpdatedAt),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating profile for account %s: %w", a.ID, err)
	}
	return nil
}

// SetAccountRemote stores the remote correlation id and the credentials of a
// local user who linked their remote account.
func (r *repo) SetAccountRemote(ctx context.Context, id uuid.UUID, remoteAccountID, instanceURL, accessToken string) error {
	const q = `
		UPDATE accounts
		SET remote_account_id = ?, remote_instance_url = ?, remote_access_token = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.q.ExecContext(ctx, q, nullable(remoteAccountID), instanceURL, accessToken, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("linking account %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("linking account %s: no such account", id)
	}
	return nil
}

func scanAccount(s scanner) (*model.Account, error) {
	var a model.Account
	var remoteID sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&a.ID,
		&a.Email,
		&a.Handle,
		&a.DisplayName,
		&a.Bio,
		&a.AvatarURL,
		&a.HeaderURL,
		&a.FollowersCount,
		&a.FollowingCount,
		&a.PostsCount,
		&remoteID,
		&a.RemoteInstanceURL,
		&a.RemoteAccessToken,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account row: %w", err)
	}

	a.RemoteAccountID = remoteID.String
	a.CreatedAt, _ = parseTime(createdAt)
	a.UpdatedAt, _ = parseTime(updatedAt)
	return &a, nil
}
