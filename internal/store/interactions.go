package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/njoerd114/fedisync/internal/model"
)

// HasLike reports whether the account has liked the post.
func (r *repo) HasLike(ctx context.Context, accountID, postID uuid.UUID) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes WHERE account_id = ? AND post_id = ?`, accountID, postID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking like of %s by %s: %w", postID, accountID, err)
	}
	return n > 0, nil
}

// CreateLike records a like.
func (r *repo) CreateLike(ctx context.Context, l *model.Like) error {
	newID(&l.ID)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO likes (id, account_id, post_id, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.q.ExecContext(ctx, q, l.ID, l.AccountID, l.PostID, formatTime(l.CreatedAt)); err != nil {
		return fmt.Errorf("inserting like of %s by %s: %w", l.PostID, l.AccountID, err)
	}
	return nil
}

// DeleteLike removes a like and reports whether one existed.
func (r *repo) DeleteLike(ctx context.Context, accountID, postID uuid.UUID) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM likes WHERE account_id = ? AND post_id = ?`, accountID, postID)
	if err != nil {
		return false, fmt.Errorf("deleting like of %s by %s: %w", postID, accountID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// HasFollow reports whether the account follows the target.
func (r *repo) HasFollow(ctx context.Context, accountID, targetID uuid.UUID) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM follows WHERE account_id = ? AND target_account_id = ?`, accountID, targetID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking follow of %s by %s: %w", targetID, accountID, err)
	}
	return n > 0, nil
}

// CreateFollow records a follow.
func (r *repo) CreateFollow(ctx context.Context, f *model.Follow) error {
	newID(&f.ID)
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO follows (id, account_id, target_account_id, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.q.ExecContext(ctx, q, f.ID, f.AccountID, f.TargetAccountID, formatTime(f.CreatedAt)); err != nil {
		return fmt.Errorf("inserting follow of %s by %s: %w", f.TargetAccountID, f.AccountID, err)
	}
	return nil
}

// DeleteFollow removes a follow and reports whether one existed.
func (r *repo) DeleteFollow(ctx context.Context, accountID, targetID uuid.UUID) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM follows WHERE account_id = ? AND target_account_id = ?`, accountID, targetID)
	if err != nil {
		return false, fmt.Errorf("deleting follow of %s by %s: %w", targetID, accountID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
