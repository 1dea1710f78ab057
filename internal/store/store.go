// Package store persists user profiles, album links, and the barcode scan
// queue in a single SQLite database.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	username    TEXT PRIMARY KEY,
	is_admin    BOOLEAN NOT NULL DEFAULT FALSE,
	sync_id     TEXT NOT NULL DEFAULT '',
	auth_json   TEXT,
	device_json TEXT,
	created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS starred_albums (
	username TEXT NOT NULL,
	barcode  TEXT NOT NULL,
	PRIMARY KEY (username, barcode)
);

CREATE TABLE IF NOT EXISTS starred_tracks (
	username     TEXT NOT NULL,
	barcode      TEXT NOT NULL,
	track_number INTEGER NOT NULL,
	PRIMARY KEY (username, barcode, track_number)
);

CREATE TABLE IF NOT EXISTS linked_albums (
	username  TEXT NOT NULL,
	barcode   TEXT NOT NULL,
	link_json TEXT NOT NULL,
	PRIMARY KEY (username, barcode)
);

CREATE TABLE IF NOT EXISTS sync_backups (
	sync_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (sync_id, kind)
);

CREATE TABLE IF NOT EXISTS barcode_queue (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	barcode           TEXT UNIQUE NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	last_attempt      TIMESTAMP,
	retry_count       INTEGER NOT NULL DEFAULT 0,
	error_message     TEXT,
	metadata_complete BOOLEAN NOT NULL DEFAULT FALSE,
	coverart_complete BOOLEAN NOT NULL DEFAULT FALSE,
	tracks_complete   BOOLEAN NOT NULL DEFAULT FALSE,
	artist            TEXT,
	album             TEXT,
	release_date      TEXT,
	mbid              TEXT
);

CREATE TABLE IF NOT EXISTS processing_stats (
	id                      INTEGER PRIMARY KEY CHECK (id = 1),
	current_backoff_seconds REAL NOT NULL DEFAULT 1.1,
	total_requests          INTEGER NOT NULL DEFAULT 0,
	failed_requests         INTEGER NOT NULL DEFAULT 0,
	last_request_time       TIMESTAMP,
	last_503_time           TIMESTAMP
);

INSERT OR IGNORE INTO processing_stats (id) VALUES (1);
`

// Store wraps the SQLite database shared by the profile and queue layers.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (and if necessary creates) the database at path. WAL mode keeps
// the HTTP handlers and the background worker from blocking each other.
func Open(path string, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer; funnel everything through one connection
	// so concurrent writes queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Info("Database opened", zap.String("path", path))
	return &Store{db: db, logger: logger.Named("store")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
