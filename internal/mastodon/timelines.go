package mastodon

import (
	"context"
	"fmt"
	"net/url"
)

// HomeTimeline returns one page of the authenticated user's home timeline.
func (c *Client) HomeTimeline(ctx context.Context, creds Credentials, page PageParams) ([]Status, Cursor, error) {
	return c.timeline(ctx, creds, "/api/v1/timelines/home", page.values())
}

// PublicTimeline returns one page of the federated timeline, or of the
// server's local timeline when local is true.
func (c *Client) PublicTimeline(ctx context.Context, creds Credentials, local bool, page PageParams) ([]Status, Cursor, error) {
	q := page.values()
	if local {
		q.Set("local", "true")
	}
	return c.timeline(ctx, creds, "/api/v1/timelines/public", q)
}

// HashtagTimeline returns one page of public statuses carrying the tag.
func (c *Client) HashtagTimeline(ctx context.Context, creds Credentials, tag string, page PageParams) ([]Status, Cursor, error) {
	return c.timeline(ctx, creds, "/api/v1/timelines/tag/"+escape(tag), page.values())
}

func (c *Client) timeline(ctx context.Context, creds Credentials, path string, q url.Values) ([]Status, Cursor, error) {
	var statuses []Status
	h, err := c.get(ctx, creds, path, q, &statuses)
	if err != nil {
		return nil, Cursor{}, fmt.Errorf("fetch %s: %w", path, err)
	}
	return statuses, parseCursor(h), nil
}

// Notifications returns one page of the authenticated user's notifications.
func (c *Client) Notifications(ctx context.Context, creds Credentials, page PageParams) ([]Notification, Cursor, error) {
	var notifs []Notification
	h, err := c.get(ctx, creds, "/api/v1/notifications", page.values(), &notifs)
	if err != nil {
		return nil, Cursor{}, fmt.Errorf("fetch notifications: %w", err)
	}
	return notifs, parseCursor(h), nil
}
