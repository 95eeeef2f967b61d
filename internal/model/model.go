// Package model defines shared data structures.
package model

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// FeedConfig holds the per-feed delivery overrides. The same structure is
// used for the global defaults; an empty field falls back to the default.
type FeedConfig struct {
	Email             string `json:"email,omitempty" mapstructure:"email" yaml:"email,omitempty"`
	Folder            string `json:"folder,omitempty" mapstructure:"folder" yaml:"folder,omitempty"`
	From              string `json:"from,omitempty" mapstructure:"from" yaml:"from,omitempty"`
	InlineImageAsData bool   `json:"inline_image_as_data,omitempty" mapstructure:"inline_image_as_data" yaml:"inline_image_as_data,omitempty"`
}

// IsZero reports whether no override is set.
func (c FeedConfig) IsZero() bool {
	return c == FeedConfig{}
}

// Resolve returns the effective configuration, taking each unset field from
// defaults. Image inlining is enabled when either side asks for it.
func (c FeedConfig) Resolve(defaults FeedConfig) FeedConfig {
	out := c
	if out.Email == "" {
		out.Email = defaults.Email
	}
	if out.Folder == "" {
		out.Folder = defaults.Folder
	}
	if out.From == "" {
		out.From = defaults.From
	}
	out.InlineImageAsData = c.InlineImageAsData || defaults.InlineImageAsData
	return out
}

// Describe renders the config the way `list` prints it, marking values
// inherited from defaults.
func (c FeedConfig) Describe(defaults FeedConfig) string {
	email := c.Email
	if email == "" {
		email = defaults.Email + " (default)"
	}
	folder := c.Folder
	if folder == "" {
		folder = defaults.Folder + " (default)"
	}
	return fmt.Sprintf("(to: %s) %s", email, folder)
}

// Epoch is the watermark of a feed that was never read.
func Epoch() time.Time {
	return time.Unix(0, 0).UTC()
}

// Feed represents a feed subscription and its delivery watermark.
type Feed struct {
	URL         string
	Config      FeedConfig
	LastUpdated time.Time
	LastMessage string // empty when nothing was delivered yet
}

// NewFeed creates a subscription that has never been read.
func NewFeed(url string, cfg FeedConfig) Feed {
	return Feed{URL: url, Config: cfg, LastUpdated: Epoch()}
}

// FeedFromArgs builds a feed from positional parameters. The last one is the
// URL, the previous one an email when it contains '@' and a folder otherwise.
// An earlier parameter is only used as folder when none was found yet.
func FeedFromArgs(params []string) (Feed, error) {
	if len(params) == 0 {
		return Feed{}, fmt.Errorf("at least a feed url is required")
	}
	rest := append([]string(nil), params...)
	pop := func() string {
		v := rest[len(rest)-1]
		rest = rest[:len(rest)-1]
		return v
	}

	var cfg FeedConfig
	url := pop()
	if len(rest) > 0 {
		second := pop()
		if strings.Contains(second, "@") {
			slog.Debug("parameter is considered an email address", "value", second)
			cfg.Email = second
		} else {
			slog.Warn("parameter is not an email address, using it as folder; no more parameters will be processed", "value", second)
			cfg.Folder = second
		}
	}
	if len(rest) > 0 && cfg.Folder == "" {
		cfg.Folder = pop()
	}
	return NewFeed(url, cfg), nil
}

// Describe renders the feed for listings.
func (f Feed) Describe(defaults FeedConfig) string {
	return fmt.Sprintf("%s %s", f.URL, f.Config.Describe(defaults))
}

// Message is a feed entry normalized for delivery. It is rebuilt on every run.
type Message struct {
	ID       string
	Title    string
	Content  string // raw HTML as found in the feed
	Links    []string
	Authors  []string // RFC 5322 mailboxes
	LastDate time.Time
}
