package mastodon

import (
	"context"
	"fmt"
)

// GetStatus fetches one status by remote id.
func (c *Client) GetStatus(ctx context.Context, creds Credentials, id string) (*Status, error) {
	var st Status
	if _, err := c.get(ctx, creds, "/api/v1/statuses/"+escape(id), nil, &st); err != nil {
		return nil, fmt.Errorf("get status %s: %w", id, err)
	}
	return &st, nil
}

// CreateStatus publishes a new status.
func (c *Client) CreateStatus(ctx context.Context, creds Credentials, params StatusParams) (*Status, error) {
	var st Status
	if err := c.post(ctx, creds, "/api/v1/statuses", params, &st); err != nil {
		return nil, fmt.Errorf("create status: %w", err)
	}
	return &st, nil
}

// DeleteStatus deletes a status owned by the authenticated user.
func (c *Client) DeleteStatus(ctx context.Context, creds Credentials, id string) error {
	if err := c.delete(ctx, creds, "/api/v1/statuses/"+escape(id), nil); err != nil {
		return fmt.Errorf("delete status %s: %w", id, err)
	}
	return nil
}

// Favourite favourites a status.
func (c *Client) Favourite(ctx context.Context, creds Credentials, id string) (*Status, error) {
	return c.statusAction(ctx, creds, id, "favourite")
}

// Unfavourite removes a favourite.
func (c *Client) Unfavourite(ctx context.Context, creds Credentials, id string) (*Status, error) {
	return c.statusAction(ctx, creds, id, "unfavourite")
}

// Reblog boosts a status.
func (c *Client) Reblog(ctx context.Context, creds Credentials, id string) (*Status, error) {
	return c.statusAction(ctx, creds, id, "reblog")
}

// Unreblog removes a boost.
func (c *Client) Unreblog(ctx context.Context, creds Credentials, id string) (*Status, error) {
	return c.statusAction(ctx, creds, id, "unreblog")
}

// Bookmark bookmarks a status.
func (c *Client) Bookmark(ctx context.Context, creds Credentials, id string) (*Status, error) {
	return c.statusAction(ctx, creds, id, "bookmark")
}

// Unbookmark removes a bookmark.
func (c *Client) Unbookmark(ctx context.Context, creds Credentials, id string) (*Status, error) {
	return c.statusAction(ctx, creds, id, "unbookmark")
}

func (c *Client) statusAction(ctx context.Context, creds Credentials, id, action string) (*Status, error) {
	var st Status
	if err := c.post(ctx, creds, "/api/v1/statuses/"+escape(id)+"/"+action, nil, &st); err != nil {
		return nil, fmt.Errorf("%s status %s: %w", action, id, err)
	}
	return &st, nil
}
