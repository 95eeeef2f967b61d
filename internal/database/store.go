// Package database provides storage backends for feed subscriptions.
package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bryan-buckman/feedmail/internal/model"
)

var (
	// ErrFeedExists is returned when adding a URL that is already subscribed.
	ErrFeedExists = errors.New("feed already exists")
	// ErrNoSuchFeed is returned for an index outside the feed list.
	ErrNoSuchFeed = errors.New("no such feed")
)

// Store defines the interface for feed storage.
// The JSON file, SQLite and PostgreSQL implementations satisfy this interface.
// Feeds keep the order they were added in; indices are positions in that order.
type Store interface {
	Close() error

	// Backend returns the name of the storage backend.
	Backend() string

	GetFeeds() ([]model.Feed, error)
	// AddFeed appends f unless a feed with the same URL exists.
	AddFeed(f model.Feed) error
	// DeleteFeed removes the feed at index and returns it.
	DeleteFeed(index int) (model.Feed, error)
	// SaveFeeds replaces the stored feeds, watermarks included.
	SaveFeeds(feeds []model.Feed) error
	// Reset removes every feed.
	Reset() error
}

// Backend names
const (
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options select and locate a backend.
type Options struct {
	Backend string
	// Path is the JSON file or SQLite database.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
}

// Open returns the configured store.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendJSON:
		return NewJSON(opts.Path)
	case BackendSQLite:
		return New(opts.Path)
	case BackendPostgres:
		return NewPostgres(opts.DSN)
	}
	return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}

func indexOf(feeds []model.Feed, url string) int {
	for i, f := range feeds {
		if f.URL == url {
			return i
		}
	}
	return -1
}
