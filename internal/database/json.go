package database

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/bryan-buckman/feedmail/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// feedRecord is the persisted shape of a feed.
type feedRecord struct {
	URL         string            `json:"url"`
	Config      *model.FeedConfig `json:"config,omitempty"`
	LastUpdated time.Time         `json:"last_updated"`
	LastMessage string            `json:"last_message,omitempty"`
}

type feedFile struct {
	Feeds []feedRecord `json:"feeds"`
}

func toRecord(f model.Feed) feedRecord {
	r := feedRecord{URL: f.URL, LastUpdated: f.LastUpdated.UTC(), LastMessage: f.LastMessage}
	if !f.Config.IsZero() {
		cfg := f.Config
		r.Config = &cfg
	}
	return r
}

func fromRecord(r feedRecord) model.Feed {
	f := model.Feed{URL: r.URL, LastUpdated: r.LastUpdated, LastMessage: r.LastMessage}
	if r.Config != nil {
		f.Config = *r.Config
	}
	if f.LastUpdated.IsZero() {
		f.LastUpdated = model.Epoch()
	}
	return f
}

// JSONStore keeps feeds in a single JSON file.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// Ensure JSONStore implements Store interface.
var _ Store = (*JSONStore)(nil)

// NewJSON opens the JSON store at path. The file is created on first write.
func NewJSON(path string) (*JSONStore, error) {
	if path == "" {
		return nil, errors.New("json store: empty path")
	}
	return &JSONStore{path: path}, nil
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }

// Backend returns the backend name.
func (s *JSONStore) Backend() string { return BackendJSON }

// GetFeeds reads every feed.
func (s *JSONStore) GetFeeds() ([]model.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// AddFeed appends f unless its URL is already present.
func (s *JSONStore) AddFeed(f model.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	feeds, err := s.load()
	if err != nil {
		return err
	}
	if indexOf(feeds, f.URL) >= 0 {
		return fmt.Errorf("%w: %s", ErrFeedExists, f.URL)
	}
	return s.write(append(feeds, f))
}

// DeleteFeed removes the feed at index.
func (s *JSONStore) DeleteFeed(index int) (model.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feeds, err := s.load()
	if err != nil {
		return model.Feed{}, err
	}
	if index < 0 || index >= len(feeds) {
		return model.Feed{}, fmt.Errorf("%w: %d", ErrNoSuchFeed, index)
	}
	removed := feeds[index]
	feeds = append(feeds[:index], feeds[index+1:]...)
	return removed, s.write(feeds)
}

// SaveFeeds replaces the stored feeds.
func (s *JSONStore) SaveFeeds(feeds []model.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(feeds)
}

// Reset removes every feed.
func (s *JSONStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(nil)
}

func (s *JSONStore) load() ([]model.Feed, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	var file feedFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", s.path, err)
	}
	feeds := make([]model.Feed, 0, len(file.Feeds))
	for _, r := range file.Feeds {
		feeds = append(feeds, fromRecord(r))
	}
	return feeds, nil
}

// write replaces the file atomically.
func (s *JSONStore) write(feeds []model.Feed) error {
	file := feedFile{Feeds: make([]feedRecord, 0, len(feeds))}
	for _, f := range feeds {
		file.Feeds = append(file.Feeds, toRecord(f))
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".feeds-*.json")
	if err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}
