package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bryan-buckman/feedmail/internal/model"
)

// feedRow is a feed as stored in the feeds table.
type feedRow struct {
	Position          int            `db:"position"`
	URL               string         `db:"url"`
	Email             string         `db:"email"`
	Folder            string         `db:"folder"`
	Sender            string         `db:"sender"`
	InlineImageAsData bool           `db:"inline_image_as_data"`
	LastUpdated       string         `db:"last_updated"`
	LastMessage       sql.NullString `db:"last_message"`
}

func toRow(position int, f model.Feed) feedRow {
	return feedRow{
		Position:          position,
		URL:               f.URL,
		Email:             f.Config.Email,
		Folder:            f.Config.Folder,
		Sender:            f.Config.From,
		InlineImageAsData: f.Config.InlineImageAsData,
		LastUpdated:       f.LastUpdated.UTC().Format(time.RFC3339Nano),
		LastMessage:       sql.NullString{String: f.LastMessage, Valid: f.LastMessage != ""},
	}
}

func (r feedRow) feed() (model.Feed, error) {
	updated, err := time.Parse(time.RFC3339Nano, r.LastUpdated)
	if err != nil {
		return model.Feed{}, fmt.Errorf("feed %s: bad last_updated %q: %w", r.URL, r.LastUpdated, err)
	}
	return model.Feed{
		URL: r.URL,
		Config: model.FeedConfig{
			Email:             r.Email,
			Folder:            r.Folder,
			From:              r.Sender,
			InlineImageAsData: r.InlineImageAsData,
		},
		LastUpdated: updated,
		LastMessage: r.LastMessage.String,
	}, nil
}

const selectFeeds = `SELECT position, url, email, folder, sender, inline_image_as_data, last_updated, last_message
	FROM feeds ORDER BY position`

const insertFeed = `INSERT INTO feeds (position, url, email, folder, sender, inline_image_as_data, last_updated, last_message)
	VALUES (:position, :url, :email, :folder, :sender, :inline_image_as_data, :last_updated, :last_message)`

// sqlStore holds the queries shared by the SQL backends. Placeholders are
// rebound for the driver by sqlx.
type sqlStore struct {
	conn *sqlx.DB
}

func (s *sqlStore) Close() error {
	return s.conn.Close()
}

func (s *sqlStore) GetFeeds() ([]model.Feed, error) {
	var rows []feedRow
	if err := s.conn.Select(&rows, selectFeeds); err != nil {
		return nil, fmt.Errorf("select feeds: %w", err)
	}
	feeds := make([]model.Feed, 0, len(rows))
	for _, r := range rows {
		f, err := r.feed()
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

func (s *sqlStore) AddFeed(f model.Feed) error {
	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.Get(&count, tx.Rebind("SELECT COUNT(*) FROM feeds WHERE url = ?"), f.URL); err != nil {
		return fmt.Errorf("look up feed: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrFeedExists, f.URL)
	}
	var next int
	if err := tx.Get(&next, "SELECT COALESCE(MAX(position) + 1, 0) FROM feeds"); err != nil {
		return fmt.Errorf("next position: %w", err)
	}
	if _, err := tx.NamedExec(insertFeed, toRow(next, f)); err != nil {
		return fmt.Errorf("insert feed: %w", err)
	}
	return tx.Commit()
}

func (s *sqlStore) DeleteFeed(index int) (model.Feed, error) {
	feeds, err := s.GetFeeds()
	if err != nil {
		return model.Feed{}, err
	}
	if index < 0 || index >= len(feeds) {
		return model.Feed{}, fmt.Errorf("%w: %d", ErrNoSuchFeed, index)
	}
	removed := feeds[index]
	if _, err := s.conn.Exec(s.conn.Rebind("DELETE FROM feeds WHERE url = ?"), removed.URL); err != nil {
		return model.Feed{}, fmt.Errorf("delete feed: %w", err)
	}
	return removed, nil
}

// SaveFeeds rewrites the table in one transaction.
func (s *sqlStore) SaveFeeds(feeds []model.Feed) error {
	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM feeds"); err != nil {
		return fmt.Errorf("clear feeds: %w", err)
	}
	for i, f := range feeds {
		if _, err := tx.NamedExec(insertFeed, toRow(i, f)); err != nil {
			return fmt.Errorf("insert feed %s: %w", f.URL, err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) Reset() error {
	_, err := s.conn.Exec("DELETE FROM feeds")
	return err
}
