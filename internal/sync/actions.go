package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/njoerd114/fedisync/internal/mastodon"
	"github.com/njoerd114/fedisync/internal/model"
	"github.com/njoerd114/fedisync/internal/store"
)

// Favourite likes a post on behalf of accountID, first on the remote server
// and then locally. A post that is already liked is left alone.
func (e *Engine) Favourite(ctx context.Context, accountID, postID uuid.UUID) error {
	creds, post, err := e.postAction(ctx, accountID, postID)
	if err != nil {
		return err
	}
	liked, err := e.store.HasLike(ctx, accountID, post.ID)
	if err != nil {
		return err
	}
	if liked {
		return nil
	}

	if _, err := e.client.Favourite(ctx, creds, post.RemoteStatusID); err != nil {
		return fmt.Errorf("favouriting status %s: %w", post.RemoteStatusID, err)
	}

	return e.store.WithTx(ctx, func(tx store.Repository) error {
		if err := tx.CreateLike(ctx, &model.Like{AccountID: accountID, PostID: post.ID}); err != nil {
			return err
		}
		return tx.AdjustLikesCount(ctx, post.ID, 1)
	})
}

// Unfavourite removes a like created by [Engine.Favourite].
func (e *Engine) Unfavourite(ctx context.Context, accountID, postID uuid.UUID) error {
	creds, post, err := e.postAction(ctx, accountID, postID)
	if err != nil {
		return err
	}
	liked, err := e.store.HasLike(ctx, accountID, post.ID)
	if err != nil {
		return err
	}
	if !liked {
		return nil
	}

	if _, err := e.client.Unfavourite(ctx, creds, post.RemoteStatusID); err != nil {
		return fmt.Errorf("unfavouriting status %s: %w", post.RemoteStatusID, err)
	}

	return e.store.WithTx(ctx, func(tx store.Repository) error {
		deleted, err := tx.DeleteLike(ctx, accountID, post.ID)
		if err != nil || !deleted {
			return err
		}
		return tx.AdjustLikesCount(ctx, post.ID, -1)
	})
}

// Follow follows targetID on behalf of accountID.
func (e *Engine) Follow(ctx context.Context, accountID, targetID uuid.UUID) error {
	creds, target, err := e.accountAction(ctx, accountID, targetID)
	if err != nil {
		return err
	}
	following, err := e.store.HasFollow(ctx, accountID, target.ID)
	if err != nil {
		return err
	}
	if following {
		return nil
	}

	if _, err := e.client.Follow(ctx, creds, target.RemoteAccountID); err != nil {
		return fmt.Errorf("following account %s: %w", target.RemoteAccountID, err)
	}
	return e.store.CreateFollow(ctx, &model.Follow{AccountID: accountID, TargetAccountID: target.ID})
}

// Unfollow reverses [Engine.Follow].
func (e *Engine) Unfollow(ctx context.Context, accountID, targetID uuid.UUID) error {
	creds, target, err := e.accountAction(ctx, accountID, targetID)
	if err != nil {
		return err
	}
	following, err := e.store.HasFollow(ctx, accountID, target.ID)
	if err != nil {
		return err
	}
	if !following {
		return nil
	}

	if _, err := e.client.Unfollow(ctx, creds, target.RemoteAccountID); err != nil {
		return fmt.Errorf("unfollowing account %s: %w", target.RemoteAccountID, err)
	}
	_, err = e.store.DeleteFollow(ctx, accountID, target.ID)
	return err
}

func (e *Engine) postAction(ctx context.Context, accountID, postID uuid.UUID) (mastodon.Credentials, *model.Post, error) {
	_, creds, err := e.credentials(ctx, accountID)
	if err != nil {
		return mastodon.Credentials{}, nil, err
	}
	post, err := e.store.GetPost(ctx, postID)
	if err != nil {
		return mastodon.Credentials{}, nil, fmt.Errorf("loading post %s: %w", postID, err)
	}
	if post == nil {
		return mastodon.Credentials{}, nil, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
	}
	if post.RemoteStatusID == "" {
		return mastodon.Credentials{}, nil, fmt.Errorf("%w: post %s", ErrNotFederated, postID)
	}
	return creds, post, nil
}

func (e *Engine) accountAction(ctx context.Context, accountID, targetID uuid.UUID) (mastodon.Credentials, *model.Account, error) {
	_, creds, err := e.credentials(ctx, accountID)
	if err != nil {
		return mastodon.Credentials{}, nil, err
	}
	target, err := e.store.GetAccount(ctx, targetID)
	if err != nil {
		return mastodon.Credentials{}, nil, fmt.Errorf("loading account %s: %w", targetID, err)
	}
	if target == nil {
		return mastodon.Credentials{}, nil, fmt.Errorf("%w: %s", ErrAccountNotFound, targetID)
	}
	if target.RemoteAccountID == "" {
		return mastodon.Credentials{}, nil, fmt.Errorf("%w: account %s", ErrNotFederated, targetID)
	}
	return creds, target, nil
}
