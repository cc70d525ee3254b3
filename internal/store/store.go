package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// journalFormat is stamped into PRAGMA user_version. Bump it when schema.sql
// changes in a way older readers cannot handle.
const journalFormat = 1

// ErrNewerJournal is returned by Open for a journal stamped with a format this
// build does not know.
var ErrNewerJournal = errors.New("journal written by a newer raycorr")

// Store is the durable journal of casts and resolutions.
type Store struct {
	db *sql.DB
}

// Open opens the journal at path, creating it if needed.
//
// One connection serves both the engine's resolution writes and CLI reads;
// SQLite allows a single writer anyway. The journal runs in WAL mode with a
// 5s busy timeout so a reader on another process never fails a write.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// prepare configures the connection, refuses journals from a newer format,
// then creates missing tables and stamps the format.
func prepare(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	format, err := pragmaInt(db, "user_version")
	if err != nil {
		return err
	}
	if format > journalFormat {
		return fmt.Errorf("%w: format %d, this build reads up to %d", ErrNewerJournal, format, journalFormat)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if format < journalFormat {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", journalFormat)); err != nil {
			return fmt.Errorf("stamp journal format: %w", err)
		}
	}
	return nil
}

func pragmaInt(db *sql.DB, name string) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA " + name).Scan(&v); err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	return v, nil
}
