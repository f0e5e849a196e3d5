// Package sqlite implements storage.Store on a single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/pkg/db/migrations"
	"github.com/fadedpez/wagerline/pkg/storage"
)

// Store implements storage.Store using SQLite. Subscribe only observes
// writes made through this process.
type Store struct {
	db       *sql.DB
	notifier *storage.Notifier
}

// New opens (or creates) the database at dbPath and applies migrations
func New(dbPath string, logger *logging.Logger) (*Store, error) {
	const op = "sqlite.New"

	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("%s: error creating database directory: %w", op, err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("%s: error opening database: %w", op, err)
	}
	// One writer at a time; version checks catch interleaved read-modify-writes
	db.SetMaxOpenConns(1)

	if err := migrations.NewMigrator(db, migrations.Files(), logger).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: error migrating database: %w", op, err)
	}

	return &Store{
		db:       db,
		notifier: storage.NewNotifier(),
	}, nil
}

// Get reads the value at path
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_nodes WHERE path = ?`, path).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return value, nil
}

// Transact performs a versioned read-modify-write of path
func (s *Store) Transact(ctx context.Context, path string, fn storage.TxFunc) ([]byte, error) {
	var current []byte
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT value, version FROM store_nodes WHERE path = ?`, path).Scan(&current, &version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, classify(err)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	var result sql.Result
	if version == 0 {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO store_nodes (path, value, version, updated_at) VALUES (?, ?, 1, CURRENT_TIMESTAMP)
			 ON CONFLICT(path) DO NOTHING`,
			path, next)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE store_nodes SET value = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
			 WHERE path = ? AND version = ?`,
			next, path, version)
	}
	if err != nil {
		return nil, classify(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, classify(err)
	}
	if rows == 0 {
		return nil, storage.ErrConflict
	}

	s.notifier.Publish(storage.Event{Path: path, Value: next})
	return next, nil
}

// Push appends value beneath path
func (s *Store) Push(ctx context.Context, path string, value []byte) (string, error) {
	key := storage.NewPushKey()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO store_children (parent, key, value, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		path, key, value)
	if err != nil {
		return "", classify(err)
	}

	s.notifier.Publish(storage.Event{Path: path, Key: key, Value: value})
	return key, nil
}

// Children returns the children of path in append order
func (s *Store) Children(ctx context.Context, path string, limit int) ([]storage.Child, error) {
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx,
			`SELECT key, value FROM (
				SELECT seq, key, value FROM store_children WHERE parent = ? ORDER BY seq DESC LIMIT ?
			) ORDER BY seq ASC`,
			path, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT key, value FROM store_children WHERE parent = ? ORDER BY seq ASC`,
			path)
	}
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var children []storage.Child
	for rows.Next() {
		var c storage.Child
		if err := rows.Scan(&c.Key, &c.Value); err != nil {
			return nil, classify(err)
		}
		children = append(children, c)
	}
	return children, classify(rows.Err())
}

// Subscribe streams change events at or beneath prefix
func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan storage.Event, error) {
	return s.notifier.Subscribe(ctx, prefix)
}

// Close closes the database connection
func (s *Store) Close() error {
	s.notifier.Close()
	return s.db.Close()
}

// classify maps driver errors onto the storage sentinels
func classify(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", storage.ErrConflict, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrFull:
			return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return err
}
