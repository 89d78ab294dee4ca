package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/njoerd114/fedisync/internal/mastodon"
	"github.com/njoerd114/fedisync/internal/model"
	"github.com/njoerd114/fedisync/internal/store"
)

// --- Mock Remote Server -------------------------------------------------------

type mockRemote struct {
	mu sync.Mutex

	self          *mastodon.Account
	accounts      map[string]*mastodon.Account // remote id → account
	timeline      []mastodon.Status
	notifications []mastodon.Notification
	cursor        mastodon.Cursor

	// fetchErr is returned by every timeline and notification fetch.
	fetchErr error

	// onGetAccount runs at the start of every GetAccount call.
	onGetAccount func()

	calls    map[string]int
	lastPage mastodon.PageParams
	lastTag  string
	actions  []string // "favourite:<id>", "follow:<id>", …
}

func newMockRemote(self *mastodon.Account) *mockRemote {
	return &mockRemote{
		self:     self,
		accounts: make(map[string]*mastodon.Account),
		calls:    make(map[string]int),
	}
}

func (m *mockRemote) addAccount(a mastodon.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = &a
}

func (m *mockRemote) called(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockRemote) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *mockRemote) VerifyCredentials(_ context.Context, creds mastodon.Credentials) (*mastodon.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["VerifyCredentials"]++
	if creds.AccessToken == "" {
		return nil, mastodon.ErrMissingCredentials
	}
	if m.self == nil {
		return nil, &mastodon.APIError{StatusCode: 401, Message: "The access token is invalid"}
	}
	cp := *m.self
	return &cp, nil
}

func (m *mockRemote) GetAccount(_ context.Context, _ mastodon.Credentials, id string) (*mastodon.Account, error) {
	if m.onGetAccount != nil {
		m.onGetAccount()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["GetAccount"]++
	a, ok := m.accounts[id]
	if !ok {
		return nil, &mastodon.APIError{StatusCode: 404, Message: "Record not found"}
	}
	cp := *a
	return &cp, nil
}

func (m *mockRemote) HomeTimeline(_ context.Context, _ mastodon.Credentials, page mastodon.PageParams) ([]mastodon.Status, mastodon.Cursor, error) {
	return m.page("HomeTimeline", page)
}

func (m *mockRemote) PublicTimeline(_ context.Context, _ mastodon.Credentials, local bool, page mastodon.PageParams) ([]mastodon.Status, mastodon.Cursor, error) {
	if local {
		return m.page("LocalTimeline", page)
	}
	return m.page("PublicTimeline", page)
}

func (m *mockRemote) HashtagTimeline(_ context.Context, _ mastodon.Credentials, tag string, page mastodon.PageParams) ([]mastodon.Status, mastodon.Cursor, error) {
	m.mu.Lock()
	m.lastTag = tag
	m.mu.Unlock()
	return m.page("HashtagTimeline", page)
}

func (m *mockRemote) page(name string, page mastodon.PageParams) ([]mastodon.Status, mastodon.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	m.lastPage = page
	if m.fetchErr != nil {
		return nil, mastodon.Cursor{}, m.fetchErr
	}
	out := make([]mastodon.Status, len(m.timeline))
	copy(out, m.timeline)
	return out, m.cursor, nil
}

func (m *mockRemote) Notifications(_ context.Context, _ mastodon.Credentials, page mastodon.PageParams) ([]mastodon.Notification, mastodon.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Notifications"]++
	m.lastPage = page
	if m.fetchErr != nil {
		return nil, mastodon.Cursor{}, m.fetchErr
	}
	out := make([]mastodon.Notification, len(m.notifications))
	copy(out, m.notifications)
	return out, m.cursor, nil
}

func (m *mockRemote) Favourite(_ context.Context, _ mastodon.Credentials, id string) (*mastodon.Status, error) {
	m.action("Favourite", "favourite:"+id)
	return &mastodon.Status{ID: id, Favourited: true}, nil
}

func (m *mockRemote) Unfavourite(_ context.Context, _ mastodon.Credentials, id string) (*mastodon.Status, error) {
	m.action("Unfavourite", "unfavourite:"+id)
	return &mastodon.Status{ID: id}, nil
}

func (m *mockRemote) Follow(_ context.Context, _ mastodon.Credentials, id string) (*mastodon.Relationship, error) {
	m.action("Follow", "follow:"+id)
	return &mastodon.Relationship{ID: id, Following: true}, nil
}

func (m *mockRemote) Unfollow(_ context.Context, _ mastodon.Credentials, id string) (*mastodon.Relationship, error) {
	m.action("Unfollow", "unfollow:"+id)
	return &mastodon.Relationship{ID: id}, nil
}

func (m *mockRemote) action(name, entry string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	m.actions = append(m.actions, entry)
}

// --- Store & fixtures ---------------------------------------------------------

const testInstance = "https://social.example"

var testCreds = mastodon.Credentials{InstanceURL: testInstance, AccessToken: "token-alice"}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// createLinked inserts a local account carrying testCreds.
func createLinked(t *testing.T, s *store.Store, remoteID string) *model.Account {
	t.Helper()
	a := &model.Account{
		Email:             "alice@example.test",
		Handle:            "alice",
		RemoteAccountID:   remoteID,
		RemoteInstanceURL: testCreds.InstanceURL,
		RemoteAccessToken: testCreds.AccessToken,
	}
	if err := s.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

func count(t *testing.T, s *store.Store, table string) int {
	t.Helper()
	n, err := s.Count(context.Background(), table)
	if err != nil {
		t.Fatalf("Count(%s): %v", table, err)
	}
	return n
}

func remoteAccount(id, acct string) mastodon.Account {
	return mastodon.Account{
		ID:             id,
		Username:       acct,
		Acct:           acct,
		DisplayName:    fmt.Sprintf("User %s", id),
		Note:           "<p>hi</p>",
		FollowersCount: 10,
		FollowingCount: 5,
		StatusesCount:  42,
	}
}

func remoteStatus(id string, author mastodon.Account, content string) mastodon.Status {
	return mastodon.Status{
		ID:         id,
		URL:        testInstance + "/@" + author.Acct + "/" + id,
		Account:    author,
		Content:    content,
		Visibility: "public",
	}
}
