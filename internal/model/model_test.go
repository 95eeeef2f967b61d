package model

import (
	"testing"
)

func TestFeedFromArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params []string
		want   Feed
	}{
		{
			name:   "url only",
			params: []string{"example.com"},
			want:   Feed{URL: "example.com", LastUpdated: Epoch()},
		},
		{
			name:   "url and email",
			params: []string{"a@example.com", "example.com"},
			want:   Feed{URL: "example.com", Config: FeedConfig{Email: "a@example.com"}, LastUpdated: Epoch()},
		},
		{
			name:   "url and folder",
			params: []string{"folder", "example.com"},
			want:   Feed{URL: "example.com", Config: FeedConfig{Folder: "folder"}, LastUpdated: Epoch()},
		},
		{
			// The folder is found first, so the leading email is ignored.
			name:   "url email and folder",
			params: []string{"a@b.c", "folder", "example.com"},
			want:   Feed{URL: "example.com", Config: FeedConfig{Folder: "folder"}, LastUpdated: Epoch()},
		},
		{
			name:   "url folder and email",
			params: []string{"folder", "a@b.c", "example.com"},
			want:   Feed{URL: "example.com", Config: FeedConfig{Email: "a@b.c", Folder: "folder"}, LastUpdated: Epoch()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := FeedFromArgs(tt.params)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.URL != tt.want.URL || got.Config != tt.want.Config || !got.LastUpdated.Equal(tt.want.LastUpdated) || got.LastMessage != "" {
				t.Errorf("FeedFromArgs(%v) = %+v, want %+v", tt.params, got, tt.want)
			}
		})
	}
}

func TestFeedFromArgs_Empty(t *testing.T) {
	t.Parallel()
	if _, err := FeedFromArgs(nil); err == nil {
		t.Error("expected error for empty parameters")
	}
}

func TestFeedConfigResolve(t *testing.T) {
	t.Parallel()

	defaults := FeedConfig{Email: "me@example.com", Folder: "Feeds", InlineImageAsData: true}
	got := FeedConfig{Folder: "Comics"}.Resolve(defaults)

	if got.Email != "me@example.com" {
		t.Errorf("Email: got %q, want %q", got.Email, "me@example.com")
	}
	if got.Folder != "Comics" {
		t.Errorf("Folder: got %q, want %q", got.Folder, "Comics")
	}
	if got.From != "" {
		t.Errorf("From: got %q, want empty", got.From)
	}
	if !got.InlineImageAsData {
		t.Error("InlineImageAsData: got false, want true from defaults")
	}
}

func TestFeedConfigDescribe(t *testing.T) {
	t.Parallel()

	defaults := FeedConfig{Email: "me@example.com", Folder: "Feeds"}
	got := FeedConfig{Folder: "Comics"}.Describe(defaults)
	want := "(to: me@example.com (default)) Comics"
	if got != want {
		t.Errorf("Describe: got %q, want %q", got, want)
	}
}
