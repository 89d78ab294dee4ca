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

const postColumns = `
	id, author_id, content, visibility, sensitive, content_warning, language,
	reply_to_id, reply_to_remote_id, reblog_of_id,
	likes_count, reblogs_count, replies_count,
	remote_status_id, url, created_at`

// CreatePost inserts a new post. A zero ID is replaced with a fresh UUID.
func (r *repo) CreatePost(ctx context.Context, p *model.Post) error {
	newID(&p.ID)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Visibility == "" {
		p.Visibility = model.VisibilityPublic
	}

	const q = `INSERT INTO posts (` + postColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q,
		p.ID,
		p.AuthorID,
		p.Content,
		string(p.Visibility),
		boolInt(p.Sensitive),
		p.ContentWarning,
		p.Language,
		p.ReplyToID,
		p.ReplyToRemoteID,
		p.ReblogOfID,
		p.LikesCount,
		p.ReblogsCount,
		p.RepliesCount,
		nullable(p.RemoteStatusID),
		p.URL,
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting post (remote %q): %w", p.RemoteStatusID, err)
	}
	return nil
}

// GetPost returns the post with the given id, or (nil, nil).
func (r *repo) GetPost(ctx context.Context, id uuid.UUID) (*model.Post, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

// GetPostByRemoteID returns the post correlated with the remote status id,
// or (nil, nil).
func (r *repo) GetPostByRemoteID(ctx context.Context, remoteID string) (*model.Post, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE remote_status_id = ?`, remoteID)
	return scanPost(row)
}

// ListPostsByAuthor returns the author's posts, newest first.
func (r *repo) ListPostsByAuthor(ctx context.Context, authorID uuid.UUID, limit int) ([]*model.Post, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE author_id = ? ORDER BY created_at DESC LIMIT ?`,
		authorID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying posts for author %s: %w", authorID, err)
	}
	defer func() { _ = rows.Close() }()

	var posts []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// UpdatePostCounts overwrites the mirrored interaction counters.
func (r *repo) UpdatePostCounts(ctx context.Context, id uuid.UUID, likes, reblogs, replies int) error {
	const q = `UPDATE posts SET likes_count = ?, reblogs_count = ?, replies_count = ? WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, q, likes, reblogs, replies, id); err != nil {
		return fmt.Errorf("updating counts for post %s: %w", id, err)
	}
	return nil
}

// AdjustLikesCount adds delta to the post's like counter, never going below 0.
func (r *repo) AdjustLikesCount(ctx context.Context, id uuid.UUID, delta int) error {
	const q = `UPDATE posts SET likes_count = MAX(likes_count + ?, 0) WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, q, delta, id); err != nil {
		return fmt.Errorf("adjusting likes for post %s: %w", id, err)
	}
	return nil
}

// LinkPendingReplies points every post that was waiting for parentRemoteID
// as its reply target at parentID. It returns the number of posts linked.
func (r *repo) LinkPendingReplies(ctx context.Context, parentID uuid.UUID, parentRemoteID string) (int64, error) {
	const q = `
		UPDATE posts SET reply_to_id = ?
		WHERE reply_to_remote_id = ? AND reply_to_id IS NULL AND id != ?`
	res, err := r.q.ExecContext(ctx, q, parentID, parentRemoteID, parentID)
	if err != nil {
		return 0, fmt.Errorf("linking replies to %s: %w", parentRemoteID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanPost(s scanner) (*model.Post, error) {
	var p model.Post
	var visibility, createdAt string
	var sensitive int
	var remoteID sql.NullString

	err := s.Scan(
		&p.ID,
		&p.AuthorID,
		&p.Content,
		&visibility,
		&sensitive,
		&p.ContentWarning,
		&p.Language,
		&p.ReplyToID,
		&p.ReplyToRemoteID,
		&p.ReblogOfID,
		&p.LikesCount,
		&p.ReblogsCount,
		&p.RepliesCount,
		&remoteID,
		&p.URL,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning post row: %w", err)
	}

	p.Visibility = model.Visibility(visibility)
	p.Sensitive = sensitive != 0
	p.RemoteStatusID = remoteID.String
	p.CreatedAt, _ = parseTime(createdAt)
	return &p, nil
}

// --- attachments -------------------------------------------------------------

// CreateMediaAttachment inserts one attachment of an existing post.
func (r *repo) CreateMediaAttachment(ctx context.Context, m *model.MediaAttachment) error {
	newID(&m.ID)
	const q = `
		INSERT INTO media_attachments
		    (id, post_id, type, url, preview_url, remote_url, description, blurhash, remote_media_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q,
		m.ID, m.PostID, string(m.Type), m.URL, m.PreviewURL, m.RemoteURL, m.Description, m.Blurhash, m.RemoteMediaID)
	if err != nil {
		return fmt.Errorf("inserting media attachment for post %s: %w", m.PostID, err)
	}
	return nil
}

// ListMediaAttachments returns the attachments of a post in insertion order.
func (r *repo) ListMediaAttachments(ctx context.Context, postID uuid.UUID) ([]*model.MediaAttachment, error) {
	const q = `
		SELECT id, post_id, type, url, preview_url, remote_url, description, blurhash, remote_media_id
		FROM media_attachments WHERE post_id = ? ORDER BY rowid`
	rows, err := r.q.QueryContext(ctx, q, postID)
	if err != nil {
		return nil, fmt.Errorf("querying media for post %s: %w", postID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.MediaAttachment
	for rows.Next() {
		var m model.MediaAttachment
		var typ string
		if err := rows.Scan(&m.ID, &m.PostID, &typ, &m.URL, &m.PreviewURL, &m.RemoteURL, &m.Description, &m.Blurhash, &m.RemoteMediaID); err != nil {
			return nil, fmt.Errorf("scanning media row: %w", err)
		}
		m.Type = model.MediaType(typ)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// --- hashtags ----------------------------------------------------------------

// EnsureHashtag returns the hashtag with the given name, creating it with a
// zero usage count if absent.
func (r *repo) EnsureHashtag(ctx context.Context, name string) (*model.Hashtag, error) {
	const ins = `INSERT INTO hashtags (id, name, usage_count) VALUES (?, ?, 0) ON CONFLICT(name) DO NOTHING`
	if _, err := r.q.ExecContext(ctx, ins, uuid.New(), name); err != nil {
		return nil, fmt.Errorf("inserting hashtag %q: %w", name, err)
	}
	return r.GetHashtag(ctx, name)
}

// GetHashtag returns the hashtag with the given name, or (nil, nil).
func (r *repo) GetHashtag(ctx context.Context, name string) (*model.Hashtag, error) {
	var h model.Hashtag
	err := r.q.QueryRowContext(ctx, `SELECT id, name, usage_count FROM hashtags WHERE name = ?`, name).
		Scan(&h.ID, &h.Name, &h.UsageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("querying hashtag %q: %w", name, err)
	}
	return &h, nil
}

// LinkPostHashtag joins a post and a hashtag. It reports false when the link
// already existed.
func (r *repo) LinkPostHashtag(ctx context.Context, postID, hashtagID uuid.UUID) (bool, error) {
	const q = `INSERT OR IGNORE INTO post_hashtags (post_id, hashtag_id) VALUES (?, ?)`
	res, err := r.q.ExecContext(ctx, q, postID, hashtagID)
	if err != nil {
		return false, fmt.Errorf("linking post %s to hashtag %s: %w", postID, hashtagID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// IncrementHashtagUsage adds one to the hashtag's usage counter.
func (r *repo) IncrementHashtagUsage(ctx context.Context, hashtagID uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE hashtags SET usage_count = usage_count + 1 WHERE id = ?`, hashtagID); err != nil {
		return fmt.Errorf("incrementing usage of hashtag %s: %w", hashtagID, err)
	}
	return nil
}

// --- mentions ----------------------------------------------------------------

// CreateMention inserts a mention row.
func (r *repo) CreateMention(ctx context.Context, m *model.Mention) error {
	newID(&m.ID)
	const q = `INSERT INTO mentions (id, post_id, account_id) VALUES (?, ?, ?)`
	if _, err := r.q.ExecContext(ctx, q, m.ID, m.PostID, m.AccountID); err != nil {
		return fmt.Errorf("inserting mention of %s in post %s: %w", m.AccountID, m.PostID, err)
	}
	return nil
}

// ListMentionedAccounts returns the ids of accounts mentioned by a post.
func (r *repo) ListMentionedAccounts(ctx context.Context, postID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT account_id FROM mentions WHERE post_id = ? ORDER BY rowid`, postID)
	if err != nil {
		return nil, fmt.Errorf("querying mentions of post %s: %w", postID, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning mention row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- polls -------------------------------------------------------------------

// CreatePoll inserts a poll and its options.
func (r *repo) CreatePoll(ctx context.Context, p *model.Poll) error {
	newID(&p.ID)
	const q = `
		INSERT INTO polls (id, post_id, remote_poll_id, expires_at, multiple, votes_count)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, q, p.ID, p.PostID, p.RemotePollID, formatTime(p.ExpiresAt), boolInt(p.Multiple), p.VotesCount)
	if err != nil {
		return fmt.Errorf("inserting poll for post %s: %w", p.PostID, err)
	}

	const qo = `INSERT INTO poll_options (id, poll_id, position, title, votes_count) VALUES (?, ?, ?, ?, ?)`
	for i := range p.Options {
		opt := &p.Options[i]
		newID(&opt.ID)
		opt.PollID = p.ID
		opt.Position = i
		if _, err := r.q.ExecContext(ctx, qo, opt.ID, opt.PollID, opt.Position, opt.Title, opt.VotesCount); err != nil {
			return fmt.Errorf("inserting poll option %d for post %s: %w", i, p.PostID, err)
		}
	}
	return nil
}

// GetPollByPost returns the poll attached to a post with its options, or
// (nil, nil).
func (r *repo) GetPollByPost(ctx context.Context, postID uuid.UUID) (*model.Poll, error) {
	var p model.Poll
	var expiresAt string
	var multiple int
	err := r.q.QueryRowContext(ctx,
		`SELECT id, post_id, remote_poll_id, expires_at, multiple, votes_count FROM polls WHERE post_id = ?`, postID).
		Scan(&p.ID, &p.PostID, &p.RemotePollID, &expiresAt, &multiple, &p.VotesCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("querying poll for post %s: %w", postID, err)
	}
	p.ExpiresAt, _ = parseTime(expiresAt)
	p.Multiple = multiple != 0

	rows, err := r.q.QueryContext(ctx,
		`SELECT id, poll_id, position, title, votes_count FROM poll_options WHERE poll_id = ? ORDER BY position`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("querying options for poll %s: %w", p.ID, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var o model.PollOption
		if err := rows.Scan(&o.ID, &o.PollID, &o.Position, &o.Title, &o.VotesCount); err != nil {
			return nil, fmt.Errorf("scanning poll option row: %w", err)
		}
		p.Options = append(p.Options, o)
	}
	return &p, rows.Err()
}
