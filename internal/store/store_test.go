package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/njoerd114/fedisync/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createAccount(t *testing.T, s *Store, handle, remoteID string) *model.Account {
	t.Helper()
	a := &model.Account{
		Email:           handle + "@example.test",
		Handle:          handle,
		RemoteAccountID: remoteID,
	}
	if err := s.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("CreateAccount %q: %v", handle, err)
	}
	return a
}

func createPost(t *testing.T, s *Store, author uuid.UUID, remoteID string) *model.Post {
	t.Helper()
	p := &model.Post{AuthorID: author, Content: "hello", RemoteStatusID: remoteID}
	if err := s.CreatePost(context.Background(), p); err != nil {
		t.Fatalf("CreatePost %q: %v", remoteID, err)
	}
	return p
}

func count(t *testing.T, s *Store, table string) int {
	t.Helper()
	n, err := s.Count(context.Background(), table)
	if err != nil {
		t.Fatalf("Count(%s): %v", table, err)
	}
	return n
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedisync.db")
	s1, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	createAccount(t, s1, "alice", "")
	if err := s1.Close(); err != nil {
		t.Fatalf("s1.Close: %v", err)
	}

	// Re-opening the same file must not fail or wipe data.
	s2, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()
	if n := count(t, s2, "accounts"); n != 1 {
		t.Errorf("accounts = %d after reopen, want 1", n)
	}
}

func TestAccount_CreateAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := createAccount(t, s, "bob@remote.example", "r-1")

	if a.ID == uuid.Nil {
		t.Fatal("CreateAccount did not assign an ID")
	}

	got, err := s.GetAccountByRemoteID(ctx, "r-1")
	if err != nil {
		t.Fatalf("GetAccountByRemoteID: %v", err)
	}
	if got == nil {
		t.Fatal("GetAccountByRemoteID returned nil, want account")
	}
	if got.ID != a.ID {
		t.Errorf("ID = %s, want %s", got.ID, a.ID)
	}
	if got.Handle != "bob@remote.example" {
		t.Errorf("Handle = %q, want %q", got.Handle, "bob@remote.example")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not round-tripped")
	}

	byHandle, err := s.GetAccountByHandle(ctx, "bob@remote.example")
	if err != nil || byHandle == nil || byHandle.ID != a.ID {
		t.Errorf("GetAccountByHandle = %+v, %v", byHandle, err)
	}
}

func TestAccount_NotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.GetAccountByRemoteID(ctx, "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing account, got %+v", got)
	}

	byID, err := s.GetAccount(ctx, uuid.New())
	if err != nil || byID != nil {
		t.Errorf("GetAccount(unknown) = %+v, %v; want nil, nil", byID, err)
	}
}

func TestAccount_LocalAccountsShareNullRemoteID(t *testing.T) {
	s := openTestStore(t)
	createAccount(t, s, "alice", "")
	createAccount(t, s, "carol", "")
	if n := count(t, s, "accounts"); n != 2 {
		t.Errorf("accounts = %d, want 2", n)
	}
}

func TestAccount_DuplicateRemoteIDRejected(t *testing.T) {
	s := openTestStore(t)
	createAccount(t, s, "bob", "r-1")
	err := s.CreateAccount(context.Background(), &model.Account{Email: "other@example.test", Handle: "other", RemoteAccountID: "r-1"})
	if err == nil {
		t.Fatal("expected unique violation for duplicate remote_account_id")
	}
}

func TestAccount_SetRemoteAndProfile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := createAccount(t, s, "alice", "")

	if err := s.SetAccountRemote(ctx, a.ID, "r-42", "https://example.social", "tok"); err != nil {
		t.Fatalf("SetAccountRemote: %v", err)
	}
	got, _ := s.GetAccount(ctx, a.ID)
	if !got.Connected() || got.RemoteAccountID != "r-42" {
		t.Errorf("after link: %+v", got)
	}

	got.DisplayName = "Alice A."
	got.Bio = "hi"
	got.FollowersCount = 10
	if err := s.UpdateAccountProfile(ctx, got); err != nil {
		t.Fatalf("UpdateAccountProfile: %v", err)
	}
	again, _ := s.GetAccount(ctx, a.ID)
	if again.DisplayName != "Alice A." || again.FollowersCount != 10 {
		t.Errorf("profile not updated: %+v", again)
	}
	if again.RemoteAccessToken != "tok" {
		t.Errorf("RemoteAccessToken = %q, want credentials untouched", again.RemoteAccessToken)
	}

	if err := s.SetAccountRemote(ctx, uuid.New(), "r-9", "https://x", "t"); err == nil {
		t.Error("SetAccountRemote on unknown account: expected error")
	}
}

func TestPost_CreateAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	author := createAccount(t, s, "bob", "r-1")
	orig := createPost(t, s, author.ID, "s-1")

	reblog := &model.Post{
		AuthorID:       author.ID,
		ReblogOfID:     uuid.NullUUID{UUID: orig.ID, Valid: true},
		RemoteStatusID: "s-2",
		Visibility:     model.VisibilityUnlisted,
		Sensitive:      true,
		CreatedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.CreatePost(ctx, reblog); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	got, err := s.GetPostByRemoteID(ctx, "s-2")
	if err != nil || got == nil {
		t.Fatalf("GetPostByRemoteID = %v, %v", got, err)
	}
	if !got.ReblogOfID.Valid || got.ReblogOfID.UUID != orig.ID {
		t.Errorf("ReblogOfID = %+v, want %s", got.ReblogOfID, orig.ID)
	}
	if got.ReplyToID.Valid {
		t.Errorf("ReplyToID = %+v, want NULL", got.ReplyToID)
	}
	if got.Visibility != model.VisibilityUnlisted || !got.Sensitive {
		t.Errorf("Visibility/Sensitive = %q/%v", got.Visibility, got.Sensitive)
	}
	if !got.CreatedAt.Equal(reblog.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, reblog.CreatedAt)
	}
}

func TestPost_ListByAuthor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	bob := createAccount(t, s, "bob", "r-1")
	carol := createAccount(t, s, "carol", "r-2")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, remoteID := range []string{"s-1", "s-2", "s-3"} {
		p := &model.Post{AuthorID: bob.ID, RemoteStatusID: remoteID, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.CreatePost(ctx, p); err != nil {
			t.Fatalf("CreatePost %s: %v", remoteID, err)
		}
	}
	createPost(t, s, carol.ID, "s-9")

	posts, err := s.ListPostsByAuthor(ctx, bob.ID, 2)
	if err != nil {
		t.Fatalf("ListPostsByAuthor: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("len = %d, want 2", len(posts))
	}
	if posts[0].RemoteStatusID != "s-3" || posts[1].RemoteStatusID != "s-2" {
		t.Errorf("order = %s, %s, want s-3, s-2", posts[0].RemoteStatusID, posts[1].RemoteStatusID)
	}

	none, err := s.ListPostsByAuthor(ctx, uuid.New(), 10)
	if err != nil {
		t.Fatalf("ListPostsByAuthor(unknown): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown author returned %d posts", len(none))
	}
}

func TestPost_Counters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	author := createAccount(t, s, "bob", "r-1")
	p := createPost(t, s, author.ID, "s-1")

	if err := s.UpdatePostCounts(ctx, p.ID, 5, 2, 1); err != nil {
		t.Fatalf("UpdatePostCounts: %v", err)
	}
	if err := s.AdjustLikesCount(ctx, p.ID, -10); err != nil {
		t.Fatalf("AdjustLikesCount: %v", err)
	}
	got, _ := s.GetPost(ctx, p.ID)
	if got.LikesCount != 0 {
		t.Errorf("LikesCount = %d, want clamped to 0", got.LikesCount)
	}
	if got.ReblogsCount != 2 || got.RepliesCount != 1 {
		t.Errorf("ReblogsCount/RepliesCount = %d/%d, want 2/1", got.ReblogsCount, got.RepliesCount)
	}
}

func TestPost_LinkPendingReplies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	author := createAccount(t, s, "bob", "r-1")

	child := &model.Post{AuthorID: author.ID, RemoteStatusID: "s-child", ReplyToRemoteID: "s-parent"}
	if err := s.CreatePost(ctx, child); err != nil {
		t.Fatalf("CreatePost child: %v", err)
	}
	parent := createPost(t, s, author.ID, "s-parent")

	n, err := s.LinkPendingReplies(ctx, parent.ID, "s-parent")
	if err != nil {
		t.Fatalf("LinkPendingReplies: %v", err)
	}
	if n != 1 {
		t.Errorf("linked = %d, want 1", n)
	}
	got, _ := s.GetPost(ctx, child.ID)
	if !got.ReplyToID.Valid || got.ReplyToID.UUID != parent.ID {
		t.Errorf("ReplyToID = %+v, want %s", got.ReplyToID, parent.ID)
	}
}

func TestHashtag_EnsureAndLink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	author := createAccount(t, s, "bob", "r-1")
	p := createPost(t, s, author.ID, "s-1")

	h1, err := s.EnsureHashtag(ctx, "test")
	if err != nil {
		t.Fatalf("EnsureHashtag: %v", err)
	}
	h2, err := s.EnsureHashtag(ctx, "test")
	if err != nil {
		t.Fatalf("EnsureHashtag again: %v", err)
	}
	if h1.ID != h2.ID {
		t.Errorf("EnsureHashtag returned different ids %s / %s", h1.ID, h2.ID)
	}

	inserted, err := s.LinkPostHashtag(ctx, p.ID, h1.ID)
	if err != nil || !inserted {
		t.Fatalf("first LinkPostHashtag = %v, %v; want true, nil", inserted, err)
	}
	inserted, err = s.LinkPostHashtag(ctx, p.ID, h1.ID)
	if err != nil || inserted {
		t.Fatalf("second LinkPostHashtag = %v, %v; want false, nil", inserted, err)
	}
	if n := count(t, s, "post_hashtags"); n != 1 {
		t.Errorf("post_hashtags = %d, want 1", n)
	}

	if err := s.IncrementHashtagUsage(ctx, h1.ID); err != nil {
		t.Fatalf("IncrementHashtagUsage: %v", err)
	}
	got, _ := s.GetHashtag(ctx, "test")
	if got.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", got.UsageCount)
	}
}

func TestPoll_CreateAndRead(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	author := createAccount(t, s, "bob", "r-1")
	p := createPost(t, s, author.ID, "s-1")

	poll := &model.Poll{
		PostID:       p.ID,
		RemotePollID: "poll-1",
		Multiple:     true,
		VotesCount:   7,
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Options:      []model.PollOption{{Title: "yes", VotesCount: 4}, {Title: "no", VotesCount: 3}},
	}
	if err := s.CreatePoll(ctx, poll); err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}

	got, err := s.GetPollByPost(ctx, p.ID)
	if err != nil || got == nil {
		t.Fatalf("GetPollByPost = %v, %v", got, err)
	}
	if !got.Multiple || got.VotesCount != 7 {
		t.Errorf("Multiple/VotesCount = %v/%d", got.Multiple, got.VotesCount)
	}
	if len(got.Options) != 2 || got.Options[0].Title != "yes" || got.Options[1].Position != 1 {
		t.Errorf("Options = %+v", got.Options)
	}
}

func TestNotification_DedupByRemoteID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	me := createAccount(t, s, "alice", "r-me")
	sender := createAccount(t, s, "bob", "r-1")

	n := &model.Notification{RecipientID: me.ID, SenderID: sender.ID, Type: model.NotificationFollow, RemoteNotificationID: "n-1"}
	inserted, err := s.CreateNotification(ctx, n)
	if err != nil || !inserted {
		t.Fatalf("first CreateNotification = %v, %v", inserted, err)
	}
	dup := &model.Notification{RecipientID: me.ID, SenderID: sender.ID, Type: model.NotificationFollow, RemoteNotificationID: "n-1"}
	inserted, err = s.CreateNotification(ctx, dup)
	if err != nil || inserted {
		t.Fatalf("duplicate CreateNotification = %v, %v; want false, nil", inserted, err)
	}

	list, err := s.ListNotifications(ctx, me.ID, 10)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(list) != 1 || list[0].Type != model.NotificationFollow {
		t.Errorf("notifications = %+v", list)
	}
}

func TestWithTx_RollbackLeavesNoRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(r Repository) error {
		if err := r.CreateAccount(ctx, &model.Account{Email: "x@example.test", Handle: "x", RemoteAccountID: "r-x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v, want boom", err)
	}
	if n := count(t, s, "accounts"); n != 0 {
		t.Errorf("accounts = %d after rollback, want 0", n)
	}

	err = s.WithTx(ctx, func(r Repository) error {
		return r.CreateAccount(ctx, &model.Account{Email: "y@example.test", Handle: "y"})
	})
	if err != nil {
		t.Fatalf("WithTx commit: %v", err)
	}
	if n := count(t, s, "accounts"); n != 1 {
		t.Errorf("accounts = %d after commit, want 1", n)
	}
}

func TestLikesAndFollows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	me := createAccount(t, s, "alice", "")
	bob := createAccount(t, s, "bob", "r-1")
	p := createPost(t, s, bob.ID, "s-1")

	if err := s.CreateLike(ctx, &model.Like{AccountID: me.ID, PostID: p.ID}); err != nil {
		t.Fatalf("CreateLike: %v", err)
	}
	if ok, _ := s.HasLike(ctx, me.ID, p.ID); !ok {
		t.Error("HasLike = false after CreateLike")
	}
	if removed, _ := s.DeleteLike(ctx, me.ID, p.ID); !removed {
		t.Error("DeleteLike = false, want true")
	}

	if err := s.CreateFollow(ctx, &model.Follow{AccountID: me.ID, TargetAccountID: bob.ID}); err != nil {
		t.Fatalf("CreateFollow: %v", err)
	}
	if ok, _ := s.HasFollow(ctx, me.ID, bob.ID); !ok {
		t.Error("HasFollow = false after CreateFollow")
	}
	if removed, _ := s.DeleteFollow(ctx, me.ID, bob.ID); !removed {
		t.Error("DeleteFollow = false, want true")
	}
	if removed, _ := s.DeleteFollow(ctx, me.ID, bob.ID); removed {
		t.Error("second DeleteFollow = true, want false")
	}
}

func TestCount_UnknownTable(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Count(context.Background(), "sqlite_master; DROP TABLE posts"); err == nil {
		t.Error("expected error for unknown table")
	}
}
