package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/fedisync/internal/mastodon"
	"github.com/njoerd114/fedisync/internal/model"
	"github.com/njoerd114/fedisync/internal/sanitize"
	"github.com/njoerd114/fedisync/internal/store"
)

const (
	otelScope         = "fedisync/sync"
	spanProfile       = "sync.profile"
	spanTimeline      = "sync.timeline"
	spanNotifications = "sync.notifications"
	metricProcessed   = "fedisync.sync.items.processed"
	metricFailed      = "fedisync.sync.items.failed"
	metricPasses      = "fedisync.sync.passes"

	// DefaultPageLimit is used when neither the caller nor Options set one.
	DefaultPageLimit = 20

	// MaxPageLimit is the largest page the remote API serves.
	MaxPageLimit = 40
)

// Timeline selects which remote timeline SyncTimeline reads.
type Timeline string

const (
	TimelineHome    Timeline = "home"
	TimelinePublic  Timeline = "public"
	TimelineLocal   Timeline = "local"
	TimelineHashtag Timeline = "hashtag"
)

// TimelineQuery describes one timeline page. The zero value is the newest
// page of the home timeline at the default size.
type TimelineQuery struct {
	Timeline Timeline
	Tag      string
	Limit    int
	MaxID    string
}

// Options configures an Engine.
type Options struct {
	// PageLimit is the page size used when a call passes limit <= 0.
	PageLimit int

	Resolver ResolverOptions
}

// Engine runs sync passes for linked local accounts. Create one with
// [NewEngine]. Passes for different accounts may run concurrently; callers
// serialize passes for the same account.
type Engine struct {
	client RemoteClient
	store  Store
	opts   Options
	log    *slog.Logger

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer       trace.Tracer
	cntProcessed metric.Int64Counter
	cntFailed    metric.Int64Counter
	cntPasses    metric.Int64Counter
}

// NewEngine creates an Engine.
func NewEngine(client RemoteClient, st Store, opts Options, logger *slog.Logger) *Engine {
	if opts.PageLimit <= 0 {
		opts.PageLimit = DefaultPageLimit
	}

	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		client: client,
		store:  st,
		opts:   opts,
		log:    logger,

		tracer:       tracer,
		cntProcessed: mustCounter(metricProcessed, "Number of remote objects imported"),
		cntFailed:    mustCounter(metricFailed, "Number of remote objects whose import failed"),
		cntPasses:    mustCounter(metricPasses, "Number of sync passes started"),
	}
}

// SyncProfile refreshes the linked account's own profile from the remote
// server. This is the only pass that overwrites existing profile fields.
func (e *Engine) SyncProfile(ctx context.Context, accountID uuid.UUID) (Report, error) {
	ctx, span := e.start(ctx, spanProfile, KindProfile, accountID)
	defer span.End()

	rep := Report{Kind: KindProfile}
	acct, creds, err := e.credentials(ctx, accountID)
	if err != nil {
		return e.fail(span, rep, err)
	}

	remote, err := e.client.VerifyCredentials(ctx, creds)
	if err != nil {
		return e.fail(span, rep, fmt.Errorf("fetching profile: %w", err))
	}

	err = e.store.WithTx(ctx, func(tx store.Repository) error {
		return applyProfile(ctx, tx, acct, remote)
	})
	rep.record(ItemResult{RemoteID: remote.ID, LocalID: acct.ID, Err: err})
	if err != nil {
		e.log.Warn("profile refresh failed", "account_id", accountID, "remote_id", remote.ID, "error", err)
	}

	e.finish(ctx, span, rep)
	return rep, nil
}

// SyncTimeline imports one page of a remote timeline. Items are resolved in
// the order received, each in its own transaction; a failing item is
// recorded in the report and does not stop the pass.
func (e *Engine) SyncTimeline(ctx context.Context, accountID uuid.UUID, q TimelineQuery) (Report, error) {
	ctx, span := e.start(ctx, spanTimeline, KindTimeline, accountID)
	defer span.End()

	rep := Report{Kind: KindTimeline}
	if q.Timeline == "" {
		q.Timeline = TimelineHome
	}
	span.SetAttributes(attribute.String("sync.timeline", string(q.Timeline)))

	_, creds, err := e.credentials(ctx, accountID)
	if err != nil {
		return e.fail(span, rep, err)
	}

	page := mastodon.PageParams{MaxID: q.MaxID, Limit: e.limit(q.Limit)}
	statuses, cur, err := e.fetchTimeline(ctx, creds, q, page)
	if err != nil {
		return e.fail(span, rep, fmt.Errorf("fetching %s timeline: %w", q.Timeline, err))
	}

	for i := range statuses {
		if err := ctx.Err(); err != nil {
			e.finish(ctx, span, rep)
			return rep, err
		}
		st := &statuses[i]

		var postID uuid.UUID
		accts, err := e.fetchMentions(ctx, creds, st)
		if err == nil {
			err = e.store.WithTx(ctx, func(tx store.Repository) error {
				var err error
				postID, err = e.resolver(tx, creds).WithAccounts(accts).ResolveStatus(ctx, st)
				return err
			})
		}
		rep.record(ItemResult{RemoteID: st.ID, LocalID: postID, Err: err})
		if err != nil {
			e.log.Warn("status import failed", "remote_id", st.ID, "operation", "resolveStatus", "error", err)
		}
	}

	rep.NextMaxID = cur.NextMaxID
	e.finish(ctx, span, rep)
	return rep, nil
}

// SyncNotifications imports one page of the linked account's notifications.
func (e *Engine) SyncNotifications(ctx context.Context, accountID uuid.UUID, limit int) (Report, error) {
	ctx, span := e.start(ctx, spanNotifications, KindNotifications, accountID)
	defer span.End()

	rep := Report{Kind: KindNotifications}
	acct, creds, err := e.credentials(ctx, accountID)
	if err != nil {
		return e.fail(span, rep, err)
	}

	notifs, cur, err := e.client.Notifications(ctx, creds, mastodon.PageParams{Limit: e.limit(limit)})
	if err != nil {
		return e.fail(span, rep, fmt.Errorf("fetching notifications: %w", err))
	}

	for i := range notifs {
		if err := ctx.Err(); err != nil {
			e.finish(ctx, span, rep)
			return rep, err
		}
		n := &notifs[i]

		var inserted bool
		accts, err := e.fetchMentions(ctx, creds, n.Status)
		if err == nil {
			err = e.store.WithTx(ctx, func(tx store.Repository) error {
				var err error
				inserted, err = e.resolver(tx, creds).WithAccounts(accts).ResolveNotification(ctx, acct.ID, n)
				return err
			})
		}
		rep.record(ItemResult{RemoteID: n.ID, Skipped: err == nil && !inserted, Err: err})
		if err != nil {
			e.log.Warn("notification import failed", "remote_id", n.ID, "type", n.Type, "operation", "resolveNotification", "error", err)
		}
	}

	rep.NextMaxID = cur.NextMaxID
	e.finish(ctx, span, rep)
	return rep, nil
}

// Link verifies creds against the remote server and stores them on the local
// account together with the remote account id and profile.
func (e *Engine) Link(ctx context.Context, accountID uuid.UUID, creds mastodon.Credentials) (*model.Account, error) {
	remote, err := e.client.VerifyCredentials(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("verifying credentials: %w", err)
	}

	var linked *model.Account
	err = e.store.WithTx(ctx, func(tx store.Repository) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		}
		if err := tx.SetAccountRemote(ctx, acct.ID, acct.RemoteAccountID, creds.InstanceURL, creds.AccessToken); err != nil {
			return err
		}
		acct.RemoteInstanceURL = creds.InstanceURL
		acct.RemoteAccessToken = creds.AccessToken
		if err := applyProfile(ctx, tx, acct, remote); err != nil {
			return err
		}
		linked = acct
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("account linked", "account_id", accountID, "remote_id", remote.ID, "instance", creds.InstanceURL)
	return linked, nil
}

// applyProfile copies the remote profile onto acct and persists it. The
// remote id must not belong to another local account.
func applyProfile(ctx context.Context, tx store.Repository, acct *model.Account, remote *mastodon.Account) error {
	if remote.ID == "" {
		return fmt.Errorf("%w: account without id", ErrInvalidRemote)
	}
	if remote.ID != acct.RemoteAccountID {
		owner, err := tx.GetAccountByRemoteID(ctx, remote.ID)
		if err != nil {
			return err
		}
		if owner != nil && owner.ID != acct.ID {
			return fmt.Errorf("%w: remote id %s", ErrAlreadyLinked, remote.ID)
		}
	}

	acct.RemoteAccountID = remote.ID
	acct.DisplayName = displayName(remote)
	acct.Bio = sanitize.Text(remote.Note)
	acct.AvatarURL = remote.Avatar
	acct.HeaderURL = remote.Header
	acct.FollowersCount = remote.FollowersCount
	acct.FollowingCount = remote.FollowingCount
	acct.PostsCount = remote.StatusesCount
	return tx.UpdateAccountProfile(ctx, acct)
}

// --- helpers -----------------------------------------------------------------

// credentials loads the local account and its remote credentials without
// touching the network.
func (e *Engine) credentials(ctx context.Context, accountID uuid.UUID) (*model.Account, mastodon.Credentials, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, mastodon.Credentials{}, fmt.Errorf("loading account %s: %w", accountID, err)
	}
	if acct == nil {
		return nil, mastodon.Credentials{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if !acct.Connected() {
		return nil, mastodon.Credentials{}, ErrNotConnected
	}
	return acct, mastodon.Credentials{InstanceURL: acct.RemoteInstanceURL, AccessToken: acct.RemoteAccessToken}, nil
}

func (e *Engine) resolver(tx store.Repository, creds mastodon.Credentials) *Resolver {
	return NewResolver(e.client, tx, creds, e.opts.Resolver, e.log)
}

// fetchMentions fetches the mentioned accounts of st, and of the statuses it
// reblogs, that are not stored locally yet.
func (e *Engine) fetchMentions(ctx context.Context, creds mastodon.Credentials, st *mastodon.Status) (map[string]*mastodon.Account, error) {
	var accts map[string]*mastodon.Account
	seen := make(map[string]bool)
	for ; st != nil && !seen[st.ID]; st = st.Reblog {
		seen[st.ID] = true
		for _, m := range st.Mentions {
			if m.ID == "" || accts[m.ID] != nil {
				continue
			}
			local, err := e.store.GetAccountByRemoteID(ctx, m.ID)
			if err != nil {
				return nil, fmt.Errorf("looking up account %s: %w", m.ID, err)
			}
			if local != nil {
				continue
			}
			remote, err := e.client.GetAccount(ctx, creds, m.ID)
			if err != nil {
				return nil, err
			}
			if accts == nil {
				accts = make(map[string]*mastodon.Account)
			}
			accts[m.ID] = remote
		}
	}
	return accts, nil
}

func (e *Engine) fetchTimeline(ctx context.Context, creds mastodon.Credentials, q TimelineQuery, page mastodon.PageParams) ([]mastodon.Status, mastodon.Cursor, error) {
	switch q.Timeline {
	case TimelineHome:
		return e.client.HomeTimeline(ctx, creds, page)
	case TimelinePublic:
		return e.client.PublicTimeline(ctx, creds, false, page)
	case TimelineLocal:
		return e.client.PublicTimeline(ctx, creds, true, page)
	case TimelineHashtag:
		tag := model.NormalizeTag(q.Tag)
		if tag == "" {
			return nil, mastodon.Cursor{}, fmt.Errorf("%w: hashtag timeline needs a tag", ErrUnknownTimeline)
		}
		return e.client.HashtagTimeline(ctx, creds, tag, page)
	default:
		return nil, mastodon.Cursor{}, fmt.Errorf("%w: %q", ErrUnknownTimeline, q.Timeline)
	}
}

// limit applies the default page size and clamps to what the server serves.
func (e *Engine) limit(n int) int {
	if n <= 0 {
		n = e.opts.PageLimit
	}
	return min(n, MaxPageLimit)
}

func (e *Engine) start(ctx context.Context, name string, kind Kind, accountID uuid.UUID) (context.Context, trace.Span) {
	e.cntPasses.Add(ctx, 1, metric.WithAttributes(attribute.String("sync.kind", string(kind))))
	return e.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("account.id", accountID.String())))
}

// finish records counters and span attributes for a completed pass.
func (e *Engine) finish(ctx context.Context, span trace.Span, rep Report) {
	kind := metric.WithAttributes(attribute.String("sync.kind", string(rep.Kind)))
	if rep.Processed > 0 {
		e.cntProcessed.Add(ctx, int64(rep.Processed), kind)
	}
	if rep.Failed > 0 {
		e.cntFailed.Add(ctx, int64(rep.Failed), kind)
	}
	span.SetAttributes(
		attribute.Int("sync.processed", rep.Processed),
		attribute.Int("sync.failed", rep.Failed),
	)

	e.log.Info("sync pass complete",
		"kind", rep.Kind,
		"processed", rep.Processed,
		"failed", rep.Failed,
		"next_max_id", rep.NextMaxID,
	)
}

// fail records a total failure of a pass.
func (e *Engine) fail(span trace.Span, rep Report, err error) (Report, error) {
	span.RecordError(err)
	e.log.Error("sync pass failed", "kind", rep.Kind, "error", err)
	return rep, err
}
