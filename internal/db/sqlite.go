package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyContent = errors.New("turn content is empty")
	ErrEmptyTitle   = errors.New("conversation title is empty")
)

type Database struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the database file at dbPath and applies the schema.
func New(dbPath string) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return open("file:" + dbPath + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
}

// OpenInMemory returns a private in-memory database, used by tests.
func OpenInMemory() (*Database, error) {
	return open("file::memory:?_foreign_keys=on&_txlock=immediate")
}

func open(dsn string) (*Database, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// A :memory: database exists per connection, and turn ordering assumes a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Database{db: db, now: time.Now}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) Ping() error {
	return db.db.Ping()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
