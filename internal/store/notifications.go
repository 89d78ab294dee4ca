package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/njoerd114/fedisync/internal/model"
)

// CreateNotification inserts a notification. A second notification with the
// same non-empty remote id for the same recipient is skipped; the return
// value reports whether a row was written.
func (r *repo) CreateNotification(ctx context.Context, n *model.Notification) (bool, error) {
	newID(&n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO notifications
		    (id, recipient_id, sender_id, type, post_id, read, remote_notification_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(recipient_id, remote_notification_id) WHERE remote_notification_id != '' DO NOTHING`
	res, err := r.q.ExecContext(ctx, q,
		n.ID,
		n.RecipientID,
		n.SenderID,
		string(n.Type),
		n.PostID,
		boolInt(n.Read),
		n.RemoteNotificationID,
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting %s notification for %s: %w", n.Type, n.RecipientID, err)
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (r *repo) ListNotifications(ctx context.Context, recipientID uuid.UUID, limit int) ([]*model.Notification, error) {
	const q = `
		SELECT id, recipient_id, sender_id, type, post_id, read, remote_notification_id, created_at
		FROM notifications WHERE recipient_id = ?
		ORDER BY created_at DESC LIMIT ?`
	rows, err := r.q.QueryContext(ctx, q, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications for %s: %w", recipientID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Notification
	for rows.Next() {
		var n model.Notification
		var typ, createdAt string
		var read int
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.SenderID, &typ, &n.PostID, &read, &n.RemoteNotificationID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		n.Type = model.NotificationType(typ)
		n.Read = read != 0
		n.CreatedAt, _ = parseTime(createdAt)
		out = append(out, &n)
	}
	return out, rows.Err()
}
