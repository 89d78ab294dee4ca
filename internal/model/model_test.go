package model

import "testing"

// ---------------------------------------------------------------------------
// MapNotificationType
// ---------------------------------------------------------------------------

func TestMapNotificationType(t *testing.T) {
	tests := []struct {
		remote string
		want   NotificationType
	}{
		{"favourite", NotificationLike},
		{"reblog", NotificationReblog},
		{"follow", NotificationFollow},
		{"follow_request", NotificationFollowRequest},
		{"mention", NotificationMention},
		{"poll", NotificationPoll},
		{"update", NotificationUpdate},
		{"foo", NotificationType("foo")},
		{"admin.sign_up", NotificationType("admin.sign_up")},
		{"", NotificationType("")},
	}
	for _, tt := range tests {
		if got := MapNotificationType(tt.remote); got != tt.want {
			t.Errorf("MapNotificationType(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// ParseVisibility / ParseMediaType
// ---------------------------------------------------------------------------

func TestParseVisibility(t *testing.T) {
	tests := []struct {
		raw  string
		want Visibility
	}{
		{"public", VisibilityPublic},
		{"unlisted", VisibilityUnlisted},
		{"private", VisibilityPrivate},
		{"direct", VisibilityDirect},
		{"PUBLIC", VisibilityPublic},
		{"limited", VisibilityPrivate},
		{"", VisibilityPrivate},
	}
	for _, tt := range tests {
		if got := ParseVisibility(tt.raw); got != tt.want {
			t.Errorf("ParseVisibility(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseMediaType(t *testing.T) {
	tests := []struct {
		raw  string
		want MediaType
	}{
		{"image", MediaImage},
		{"video", MediaVideo},
		{"gifv", MediaGIFV},
		{"audio", MediaAudio},
		{"unknown", MediaUnknown},
		{"3d-model", MediaUnknown},
	}
	for _, tt := range tests {
		if got := ParseMediaType(tt.raw); got != tt.want {
			t.Errorf("ParseMediaType(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeTag(t *testing.T) {
	tests := []struct{ in, want string }{
		{"test", "test"},
		{"#Test", "test"},
		{" GoLang ", "golang"},
	}
	for _, tt := range tests {
		if got := NormalizeTag(tt.in); got != tt.want {
			t.Errorf("NormalizeTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAccountConnected(t *testing.T) {
	tests := []struct {
		name string
		acct Account
		want bool
	}{
		{"no credentials", Account{}, false},
		{"url only", Account{RemoteInstanceURL: "https://example.social"}, false},
		{"token only", Account{RemoteAccessToken: "tok"}, false},
		{"both", Account{RemoteInstanceURL: "https://example.social", RemoteAccessToken: "tok"}, true},
	}
	for _, tt := range tests {
		if got := tt.acct.Connected(); got != tt.want {
			t.Errorf("%s: Connected() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
