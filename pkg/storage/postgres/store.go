// Package postgres implements storage.Store on PostgreSQL through gorm.
// Updates lock the row with SELECT ... FOR UPDATE and also compare the row
// version, so a lost race surfaces as storage.ErrConflict instead of a
// silent overwrite.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/fadedpez/wagerline/pkg/storage"
)

// Node is one value in the store tree
type Node struct {
	Path      string `gorm:"primaryKey;size:512"`
	Value     []byte `gorm:"not null"`
	Version   int64  `gorm:"not null;default:1"`
	UpdatedAt time.Time
}

func (Node) TableName() string { return "store_nodes" }

// ChildRow is one pushed child; Seq gives append order
type ChildRow struct {
	Seq       int64  `gorm:"primaryKey;autoIncrement"`
	Parent    string `gorm:"size:512;not null;index:idx_store_children_parent"`
	Key       string `gorm:"size:64;not null;uniqueIndex"`
	Value     []byte `gorm:"not null"`
	CreatedAt time.Time
}

func (ChildRow) TableName() string { return "store_children" }

// Store implements storage.Store using gorm
type Store struct {
	db       *gorm.DB
	notifier *storage.Notifier
}

// Open connects to PostgreSQL with dsn and migrates the schema
func Open(dsn string) (*Store, error) {
	const op = "postgres.Open"

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, storage.ErrUnavailable, err)
	}
	return New(db)
}

// New wraps an open gorm connection and migrates the schema
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Node{}, &ChildRow{}); err != nil {
		return nil, fmt.Errorf("postgres.New: migrating schema: %w", err)
	}
	return &Store{
		db:       db,
		notifier: storage.NewNotifier(),
	}, nil
}

// Get reads the value at path
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	var node Node
	err := s.db.WithContext(ctx).Where("path = ?", path).First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return node.Value, nil
}

// Transact locks path, applies fn and commits
func (s *Store) Transact(ctx context.Context, path string, fn storage.TxFunc) ([]byte, error) {
	var fnErr error
	var result []byte

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var node Node
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("path = ?", path).
			First(&node).Error
		exists := true
		if errors.Is(err, gorm.ErrRecordNotFound) {
			exists = false
		} else if err != nil {
			return err
		}

		var current []byte
		if exists {
			current = node.Value
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}
		if next == nil {
			result = current
			return nil
		}

		var res *gorm.DB
		if exists {
			res = tx.Model(&Node{}).
				Where("path = ? AND version = ?", path, node.Version).
				Updates(map[string]interface{}{
					"value":      next,
					"version":    gorm.Expr("version + 1"),
					"updated_at": time.Now(),
				})
		} else {
			res = tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&Node{Path: path, Value: next, Version: 1, UpdatedAt: time.Now()})
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrConflict
		}

		result = next
		return nil
	})

	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, classify(err)
	}
	if result != nil {
		s.notifier.Publish(storage.Event{Path: path, Value: result})
	}
	return result, nil
}

// Push appends value beneath path
func (s *Store) Push(ctx context.Context, path string, value []byte) (string, error) {
	row := ChildRow{
		Parent:    path,
		Key:       storage.NewPushKey(),
		Value:     value,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", classify(err)
	}

	s.notifier.Publish(storage.Event{Path: path, Key: row.Key, Value: value})
	return row.Key, nil
}

// Children returns the children of path in append order
func (s *Store) Children(ctx context.Context, path string, limit int) ([]storage.Child, error) {
	var rows []ChildRow
	q := s.db.WithContext(ctx).Where("parent = ?", path)
	if limit > 0 {
		q = q.Order("seq DESC").Limit(limit)
	} else {
		q = q.Order("seq ASC")
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, classify(err)
	}

	children := make([]storage.Child, len(rows))
	for i, row := range rows {
		idx := i
		if limit > 0 {
			idx = len(rows) - 1 - i
		}
		children[idx] = storage.Child{Key: row.Key, Value: row.Value}
	}
	return children, nil
}

// Subscribe streams change events at or beneath prefix. Only writes made
// through this process are observed.
func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan storage.Event, error) {
	return s.notifier.Subscribe(ctx, prefix)
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	s.notifier.Close()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func classify(err error) error {
	if err == nil || errors.Is(err, storage.ErrConflict) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505": // serialization_failure, deadlock_detected, unique_violation
			return fmt.Errorf("%w: %v", storage.ErrConflict, err)
		case "57P01", "57P03", "53300": // admin_shutdown, cannot_connect_now, too_many_connections
			return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return err
}
