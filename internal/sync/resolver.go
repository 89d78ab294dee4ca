package sync

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/njoerd114/fedisync/internal/mastodon"
	"github.com/njoerd114/fedisync/internal/model"
	"github.com/njoerd114/fedisync/internal/sanitize"
	"github.com/njoerd114/fedisync/internal/store"
)

// placeholderDomain suffixes the generated email of mirrored accounts. The
// .invalid TLD is reserved, so these addresses can never receive mail.
const placeholderDomain = "remote.invalid"

// ResolverOptions selects the re-import strategy.
type ResolverOptions struct {
	// RefreshOnReimport refreshes the mirrored counters of accounts and posts
	// that already exist locally. When false, the first imported copy wins.
	RefreshOnReimport bool
}

// Resolver maps remote objects onto local rows. Every Resolve method is
// idempotent with respect to the remote id: a second call with the same
// object returns the same local id and writes nothing new.
//
// A Resolver is bound to one repository (normally a transaction) and to the
// credentials used for follow-up fetches. It is not safe for concurrent use.
type Resolver struct {
	client RemoteClient
	repo   store.Repository
	creds  mastodon.Credentials
	host   string
	opts   ResolverOptions
	log    *slog.Logger

	// inflight holds the remote ids of statuses currently being resolved.
	inflight map[string]bool

	// fetched holds accounts fetched ahead of time, keyed by remote id.
	fetched map[string]*mastodon.Account
}

// NewResolver creates a Resolver writing to repo.
func NewResolver(client RemoteClient, repo store.Repository, creds mastodon.Credentials, opts ResolverOptions, logger *slog.Logger) *Resolver {
	host := ""
	if u, err := url.Parse(creds.InstanceURL); err == nil {
		host = u.Hostname()
	}
	return &Resolver{
		client:   client,
		repo:     repo,
		creds:    creds,
		host:     host,
		opts:     opts,
		log:      logger,
		inflight: make(map[string]bool),
	}
}

// WithAccounts lets ResolveAccountByRemoteID use accts instead of fetching
// them. The Engine fills it before opening the item's transaction so no
// network call runs while the transaction holds the database.
func (r *Resolver) WithAccounts(accts map[string]*mastodon.Account) *Resolver {
	r.fetched = accts
	return r
}

// --- accounts ----------------------------------------------------------------

// ResolveAccount returns the local id of the remote account, creating a
// mirrored account on first encounter.
func (r *Resolver) ResolveAccount(ctx context.Context, remote *mastodon.Account) (uuid.UUID, error) {
	if remote == nil || remote.ID == "" {
		return uuid.Nil, fmt.Errorf("%w: account without id", ErrInvalidRemote)
	}

	existing, err := r.repo.GetAccountByRemoteID(ctx, remote.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("looking up account %s: %w", remote.ID, err)
	}
	if existing != nil {
		if r.opts.RefreshOnReimport && countsChanged(existing, remote) {
			if err := r.repo.UpdateAccountCounts(ctx, existing.ID, remote.FollowersCount, remote.FollowingCount, remote.StatusesCount); err != nil {
				return uuid.Nil, err
			}
		}
		return existing.ID, nil
	}

	handle := r.qualifiedHandle(remote)
	acct := &model.Account{
		Email:           placeholderEmail(handle, remote.ID),
		Handle:          handle,
		DisplayName:     displayName(remote),
		Bio:             sanitize.Text(remote.Note),
		AvatarURL:       remote.Avatar,
		HeaderURL:       remote.Header,
		FollowersCount:  remote.FollowersCount,
		FollowingCount:  remote.FollowingCount,
		PostsCount:      remote.StatusesCount,
		RemoteAccountID: remote.ID,
		CreatedAt:       remote.CreatedAt,
	}
	if err := r.repo.CreateAccount(ctx, acct); err != nil {
		return uuid.Nil, err
	}
	r.log.Debug("imported account", "remote_id", remote.ID, "handle", handle, "account_id", acct.ID)
	return acct.ID, nil
}

// ResolveAccountByRemoteID returns the local id for a remote account id. On a
// local miss the account is fetched once from the remote server.
func (r *Resolver) ResolveAccountByRemoteID(ctx context.Context, remoteID string) (uuid.UUID, error) {
	if remoteID == "" {
		return uuid.Nil, fmt.Errorf("%w: empty account id", ErrInvalidRemote)
	}

	existing, err := r.repo.GetAccountByRemoteID(ctx, remoteID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("looking up account %s: %w", remoteID, err)
	}
	if existing != nil {
		return existing.ID, nil
	}

	if remote, ok := r.fetched[remoteID]; ok {
		return r.ResolveAccount(ctx, remote)
	}
	remote, err := r.client.GetAccount(ctx, r.creds, remoteID)
	if err != nil {
		return uuid.Nil, err
	}
	return r.ResolveAccount(ctx, remote)
}

// --- statuses ----------------------------------------------------------------

// ResolveStatus returns the local id of the remote status. On first encounter
// it imports the author, the reblogged original, media, hashtags, mentions and
// poll. The first imported copy of a status wins; later copies only refresh
// counters when RefreshOnReimport is set.
func (r *Resolver) ResolveStatus(ctx context.Context, remote *mastodon.Status) (uuid.UUID, error) {
	if remote == nil || remote.ID == "" {
		return uuid.Nil, fmt.Errorf("%w: status without id", ErrInvalidRemote)
	}
	if r.inflight[remote.ID] {
		return uuid.Nil, fmt.Errorf("%w: status %s", ErrCyclicReference, remote.ID)
	}
	r.inflight[remote.ID] = true
	defer delete(r.inflight, remote.ID)

	existing, err := r.repo.GetPostByRemoteID(ctx, remote.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("looking up status %s: %w", remote.ID, err)
	}
	if existing != nil {
		if r.opts.RefreshOnReimport {
			if err := r.repo.UpdatePostCounts(ctx, existing.ID, remote.FavouritesCount, remote.ReblogsCount, remote.RepliesCount); err != nil {
				return uuid.Nil, err
			}
		}
		return existing.ID, nil
	}

	authorID, err := r.ResolveAccount(ctx, &remote.Account)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving author of status %s: %w", remote.ID, err)
	}

	post := &model.Post{
		AuthorID:       authorID,
		Content:        sanitize.Text(remote.Content),
		Visibility:     model.ParseVisibility(remote.Visibility),
		Sensitive:      remote.Sensitive,
		ContentWarning: sanitize.Text(remote.SpoilerText),
		Language:       remote.Language,
		LikesCount:     remote.FavouritesCount,
		ReblogsCount:   remote.ReblogsCount,
		RepliesCount:   remote.RepliesCount,
		RemoteStatusID: remote.ID,
		URL:            statusURL(remote),
		CreatedAt:      remote.CreatedAt,
	}

	if remote.Reblog != nil {
		originalID, err := r.resolveOriginal(ctx, remote.Reblog)
		if err != nil {
			return uuid.Nil, fmt.Errorf("resolving reblog target of status %s: %w", remote.ID, err)
		}
		post.ReblogOfID = uuid.NullUUID{UUID: originalID, Valid: true}
	}

	if remote.InReplyToID != "" {
		parent, err := r.repo.GetPostByRemoteID(ctx, remote.InReplyToID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("looking up reply target %s: %w", remote.InReplyToID, err)
		}
		if parent != nil {
			post.ReplyToID = uuid.NullUUID{UUID: parent.ID, Valid: true}
		} else {
			post.ReplyToRemoteID = remote.InReplyToID
		}
	}

	if err := r.repo.CreatePost(ctx, post); err != nil {
		return uuid.Nil, err
	}

	if err := r.importMedia(ctx, post.ID, remote.MediaAttachments); err != nil {
		return uuid.Nil, err
	}
	if err := r.importTags(ctx, post.ID, remote.Tags); err != nil {
		return uuid.Nil, err
	}
	if err := r.importMentions(ctx, post.ID, remote.Mentions); err != nil {
		return uuid.Nil, err
	}
	if remote.Poll != nil {
		if err := r.repo.CreatePoll(ctx, convertPoll(post.ID, remote.Poll)); err != nil {
			return uuid.Nil, err
		}
	}

	linked, err := r.repo.LinkPendingReplies(ctx, post.ID, remote.ID)
	if err != nil {
		return uuid.Nil, err
	}

	r.log.Debug("imported status",
		"remote_id", remote.ID,
		"post_id", post.ID,
		"reblog", post.ReblogOfID.Valid,
		"replies_linked", linked,
	)
	return post.ID, nil
}

// resolveOriginal resolves a reblogged status and returns the id of the
// original post at the bottom of the chain.
func (r *Resolver) resolveOriginal(ctx context.Context, inner *mastodon.Status) (uuid.UUID, error) {
	innerID, err := r.ResolveStatus(ctx, inner)
	if err != nil {
		return uuid.Nil, err
	}
	innerPost, err := r.repo.GetPost(ctx, innerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("loading post %s: %w", innerID, err)
	}
	if innerPost != nil && innerPost.ReblogOfID.Valid {
		return innerPost.ReblogOfID.UUID, nil
	}
	return innerID, nil
}

func (r *Resolver) importMedia(ctx context.Context, postID uuid.UUID, media []mastodon.MediaAttachment) error {
	for _, m := range media {
		att := &model.MediaAttachment{
			PostID:        postID,
			Type:          model.ParseMediaType(m.Type),
			URL:           m.URL,
			PreviewURL:    m.PreviewURL,
			RemoteURL:     m.RemoteURL,
			Description:   m.Description,
			Blurhash:      m.Blurhash,
			RemoteMediaID: m.ID,
		}
		if err := r.repo.CreateMediaAttachment(ctx, att); err != nil {
			return err
		}
	}
	return nil
}

// importTags links the post to each hashtag, creating hashtags on first use.
// Usage counts only grow when a new post-hashtag link is written.
func (r *Resolver) importTags(ctx context.Context, postID uuid.UUID, tags []mastodon.Tag) error {
	for _, t := range tags {
		name := model.NormalizeTag(t.Name)
		if name == "" {
			continue
		}
		tag, err := r.repo.EnsureHashtag(ctx, name)
		if err != nil {
			return err
		}
		inserted, err := r.repo.LinkPostHashtag(ctx, postID, tag.ID)
		if err != nil {
			return err
		}
		if !inserted {
			continue
		}
		if err := r.repo.IncrementHashtagUsage(ctx, tag.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) importMentions(ctx context.Context, postID uuid.UUID, mentions []mastodon.Mention) error {
	for _, m := range mentions {
		accountID, err := r.ResolveAccountByRemoteID(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("resolving mention @%s: %w", m.Acct, err)
		}
		if err := r.repo.CreateMention(ctx, &model.Mention{PostID: postID, AccountID: accountID}); err != nil {
			return err
		}
	}
	return nil
}

// --- notifications -----------------------------------------------------------

// ResolveNotification imports a notification addressed to recipientID. It
// reports false when the same remote notification was already stored.
func (r *Resolver) ResolveNotification(ctx context.Context, recipientID uuid.UUID, remote *mastodon.Notification) (bool, error) {
	if remote == nil {
		return false, fmt.Errorf("%w: nil notification", ErrInvalidRemote)
	}

	senderID, err := r.ResolveAccount(ctx, &remote.Account)
	if err != nil {
		return false, fmt.Errorf("resolving sender of notification %s: %w", remote.ID, err)
	}

	var postID uuid.NullUUID
	if remote.Status != nil {
		id, err := r.ResolveStatus(ctx, remote.Status)
		if err != nil {
			return false, fmt.Errorf("resolving status of notification %s: %w", remote.ID, err)
		}
		postID = uuid.NullUUID{UUID: id, Valid: true}
	}

	return r.repo.CreateNotification(ctx, &model.Notification{
		RecipientID:          recipientID,
		SenderID:             senderID,
		Type:                 model.MapNotificationType(remote.Type),
		PostID:               postID,
		RemoteNotificationID: remote.ID,
		CreatedAt:            remote.CreatedAt,
	})
}

// --- helpers -----------------------------------------------------------------

// qualifiedHandle returns user@host. Accounts on the credentials' own server
// come back without a host part.
func (r *Resolver) qualifiedHandle(remote *mastodon.Account) string {
	acct := remote.Acct
	if acct == "" {
		acct = remote.Username
	}
	if acct == "" {
		acct = remote.ID
	}
	if !strings.Contains(acct, "@") && r.host != "" {
		acct += "@" + r.host
	}
	return strings.ToLower(acct)
}

// placeholderEmail maps user@host and a remote id to
// user+id@host.remote.invalid. The remote id keeps addresses unique when a
// handle is reused by a new remote account.
func placeholderEmail(handle, remoteID string) string {
	user, host, ok := strings.Cut(handle, "@")
	local := user + "+" + remoteID
	if !ok || host == "" {
		return local + "@" + placeholderDomain
	}
	return local + "@" + host + "." + placeholderDomain
}

func displayName(remote *mastodon.Account) string {
	if remote.DisplayName != "" {
		return remote.DisplayName
	}
	return remote.Username
}

func statusURL(remote *mastodon.Status) string {
	if remote.URL != "" {
		return remote.URL
	}
	return remote.URI
}

func countsChanged(a *model.Account, remote *mastodon.Account) bool {
	return a.FollowersCount != remote.FollowersCount ||
		a.FollowingCount != remote.FollowingCount ||
		a.PostsCount != remote.StatusesCount
}

func convertPoll(postID uuid.UUID, remote *mastodon.Poll) *model.Poll {
	p := &model.Poll{
		PostID:       postID,
		RemotePollID: remote.ID,
		Multiple:     remote.Multiple,
		VotesCount:   remote.VotesCount,
	}
	if remote.ExpiresAt != nil {
		p.ExpiresAt = *remote.ExpiresAt
	}
	for _, o := range remote.Options {
		opt := model.PollOption{Title: o.Title}
		if o.VotesCount != nil {
			opt.VotesCount = *o.VotesCount
		}
		p.Options = append(p.Options, opt)
	}
	return p
}
