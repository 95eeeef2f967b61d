package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	sqlStore
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between pool connections
	conn.SetMaxOpenConns(1)

	db := &DB{sqlStore{conn: conn}}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Backend returns the backend name.
func (db *DB) Backend() string {
	return BackendSQLite
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feeds (
		position INTEGER NOT NULL,
		url TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		folder TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		inline_image_as_data INTEGER NOT NULL DEFAULT 0,
		last_updated TEXT NOT NULL,
		last_message TEXT
	);
	CREATE INDEX IF NOT EXISTS feeds_position ON feeds(position);
	`
	_, err := db.conn.Exec(schema)
	return err
}
