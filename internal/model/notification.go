package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType tags a notification. The well-known values are listed
// below; anything else received from a remote server is kept verbatim.
type NotificationType string

const (
	NotificationLike          NotificationType = "like"
	NotificationReblog        NotificationType = "reblog"
	NotificationFollow        NotificationType = "follow"
	NotificationFollowRequest NotificationType = "follow_request"
	NotificationMention       NotificationType = "mention"
	NotificationPoll          NotificationType = "poll"
	NotificationUpdate        NotificationType = "update"
)

// remoteNotificationTypes is the fixed mapping from remote type names.
var remoteNotificationTypes = map[string]NotificationType{
	"favourite":      NotificationLike,
	"reblog":         NotificationReblog,
	"follow":         NotificationFollow,
	"follow_request": NotificationFollowRequest,
	"mention":        NotificationMention,
	"poll":           NotificationPoll,
	"update":         NotificationUpdate,
}

// MapNotificationType returns the local tag for a remote notification type.
// Unknown types pass through unchanged.
func MapNotificationType(remote string) NotificationType {
	if t, ok := remoteNotificationTypes[remote]; ok {
		return t
	}
	return NotificationType(remote)
}

// Notification is addressed to a local user.
type Notification struct {
	ID                   uuid.UUID
	RecipientID          uuid.UUID
	SenderID             uuid.UUID
	Type                 NotificationType
	PostID               uuid.NullUUID
	Read                 bool
	RemoteNotificationID string
	CreatedAt            time.Time
}

// Like records that a local user favourited a post through the engine.
type Like struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	PostID    uuid.UUID
	CreatedAt time.Time
}

// Follow records that a local user follows another account.
type Follow struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	TargetAccountID uuid.UUID
	CreatedAt       time.Time
}
