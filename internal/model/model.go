// Package model defines the local entity types written by the sync engine and
// read by the rest of the backend.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Visibility is the audience of a post.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// ParseVisibility maps a remote visibility string onto the local enum.
// Unrecognised values (e.g. server-specific "limited") become private, the
// narrowest audience that is still visible to followers.
func ParseVisibility(raw string) Visibility {
	switch Visibility(strings.ToLower(raw)) {
	case VisibilityPublic:
		return VisibilityPublic
	case VisibilityUnlisted:
		return VisibilityUnlisted
	case VisibilityPrivate:
		return VisibilityPrivate
	case VisibilityDirect:
		return VisibilityDirect
	default:
		return VisibilityPrivate
	}
}

// MediaType classifies an attachment.
type MediaType string

const (
	MediaImage   MediaType = "image"
	MediaVideo   MediaType = "video"
	MediaGIFV    MediaType = "gifv"
	MediaAudio   MediaType = "audio"
	MediaUnknown MediaType = "unknown"
)

// ParseMediaType maps a remote attachment type onto the local enum.
func ParseMediaType(raw string) MediaType {
	switch MediaType(strings.ToLower(raw)) {
	case MediaImage:
		return MediaImage
	case MediaVideo:
		return MediaVideo
	case MediaGIFV:
		return MediaGIFV
	case MediaAudio:
		return MediaAudio
	default:
		return MediaUnknown
	}
}

// Account is a local user or a mirrored remote user.
type Account struct {
	ID          uuid.UUID
	Email       string
	Handle      string
	DisplayName string
	Bio         string
	AvatarURL   string
	HeaderURL   string

	FollowersCount int
	FollowingCount int
	PostsCount     int

	// RemoteAccountID correlates the row with the remote server's account
	// id. Empty for local-only accounts.
	RemoteAccountID string

	// RemoteInstanceURL and RemoteAccessToken are set only for a local user
	// who linked their remote account. They are stored verbatim.
	RemoteInstanceURL string
	RemoteAccessToken string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Connected reports whether the account carries usable remote credentials.
func (a *Account) Connected() bool {
	return a.RemoteInstanceURL != "" && a.RemoteAccessToken != ""
}

// Post is a local status, either authored locally or imported.
type Post struct {
	ID             uuid.UUID
	AuthorID       uuid.UUID
	Content        string
	Visibility     Visibility
	Sensitive      bool
	ContentWarning string
	Language       string

	// ReplyToID links to the parent post once it exists locally.
	// ReplyToRemoteID keeps the parent's remote id until then.
	ReplyToID       uuid.NullUUID
	ReplyToRemoteID string

	// ReblogOfID always points at an original post, never at another reblog.
	ReblogOfID uuid.NullUUID

	LikesCount   int
	ReblogsCount int
	RepliesCount int

	RemoteStatusID string
	URL            string
	CreatedAt      time.Time
}

// MediaAttachment belongs to exactly one post.
type MediaAttachment struct {
	ID            uuid.UUID
	PostID        uuid.UUID
	Type          MediaType
	URL           string
	PreviewURL    string
	RemoteURL     string
	Description   string
	Blurhash      string
	RemoteMediaID string
}

// Hashtag is unique by Name.
type Hashtag struct {
	ID         uuid.UUID
	Name       string
	UsageCount int
}

// NormalizeTag lowercases a tag name and strips a leading '#'.
func NormalizeTag(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}

// Mention records that a post mentions an account.
type Mention struct {
	ID        uuid.UUID
	PostID    uuid.UUID
	AccountID uuid.UUID
}

// Poll belongs to exactly one post. Options are ordered.
type Poll struct {
	ID           uuid.UUID
	PostID       uuid.UUID
	RemotePollID string
	ExpiresAt    time.Time
	Multiple     bool
	VotesCount   int
	Options      []PollOption
}

// PollOption is one choice of a [Poll].
type PollOption struct {
	ID         uuid.UUID
	PollID     uuid.UUID
	Position   int
	Title      string
	VotesCount int
}
