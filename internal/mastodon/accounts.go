package mastodon

import (
	"context"
	"fmt"
)

// VerifyCredentials returns the account that owns the access token.
func (c *Client) VerifyCredentials(ctx context.Context, creds Credentials) (*Account, error) {
	var acct Account
	if _, err := c.get(ctx, creds, "/api/v1/accounts/verify_credentials", nil, &acct); err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	return &acct, nil
}

// GetAccount fetches one account by remote id.
func (c *Client) GetAccount(ctx context.Context, creds Credentials, id string) (*Account, error) {
	var acct Account
	if _, err := c.get(ctx, creds, "/api/v1/accounts/"+escape(id), nil, &acct); err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return &acct, nil
}

// AccountStatuses returns one page of statuses posted by the account.
func (c *Client) AccountStatuses(ctx context.Context, creds Credentials, id string, page PageParams) ([]Status, Cursor, error) {
	var statuses []Status
	h, err := c.get(ctx, creds, "/api/v1/accounts/"+escape(id)+"/statuses", page.values(), &statuses)
	if err != nil {
		return nil, Cursor{}, fmt.Errorf("account %s statuses: %w", id, err)
	}
	return statuses, parseCursor(h), nil
}

// Follow follows the account.
func (c *Client) Follow(ctx context.Context, creds Credentials, id string) (*Relationship, error) {
	return c.relationshipAction(ctx, creds, id, "follow")
}

// Unfollow unfollows the account.
func (c *Client) Unfollow(ctx context.Context, creds Credentials, id string) (*Relationship, error) {
	return c.relationshipAction(ctx, creds, id, "unfollow")
}

// Block blocks the account.
func (c *Client) Block(ctx context.Context, creds Credentials, id string) (*Relationship, error) {
	return c.relationshipAction(ctx, creds, id, "block")
}

// Unblock unblocks the account.
func (c *Client) Unblock(ctx context.Context, creds Credentials, id string) (*Relationship, error) {
	return c.relationshipAction(ctx, creds, id, "unblock")
}

// Mute mutes the account.
func (c *Client) Mute(ctx context.Context, creds Credentials, id string) (*Relationship, error) {
	return c.relationshipAction(ctx, creds, id, "mute")
}

// Unmute unmutes the account.
func (c *Client) Unmute(ctx context.Context, creds Credentials, id string) (*Relationship, error) {
	return c.relationshipAction(ctx, creds, id, "unmute")
}

func (c *Client) relationshipAction(ctx context.Context, creds Credentials, id, action string) (*Relationship, error) {
	var rel Relationship
	if err := c.post(ctx, creds, "/api/v1/accounts/"+escape(id)+"/"+action, nil, &rel); err != nil {
		return nil, fmt.Errorf("%s account %s: %w", action, id, err)
	}
	return &rel, nil
}
