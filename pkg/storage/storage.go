package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Common storage errors
var (
	ErrNotFound    = errors.New("storage: not found")
	ErrConflict    = errors.New("storage: concurrent modification")
	ErrUnavailable = errors.New("storage: unavailable")
	ErrClosed      = errors.New("storage: closed")
)

// TxFunc computes the new value of a path from its current value. current is
// nil when the path does not exist. Returning a nil value leaves the path
// unchanged; returning an error aborts the transaction with that error.
type TxFunc func(current []byte) ([]byte, error)

// Child is one entry appended beneath a path with Push
type Child struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// Event notifies a subscriber that a path changed
type Event struct {
	Path  string `json:"path"`
	Key   string `json:"key,omitempty"` // Set for Push events
	Value []byte `json:"value"`
}

// Store is a key-value tree. It is the only persistence primitive the ledger
// and round driver rely on.
type Store interface {
	// Get reads the value at path, or ErrNotFound
	Get(ctx context.Context, path string) ([]byte, error)

	// Transact runs one optimistic read-modify-write of path. If another
	// writer committed between the read and the write, nothing is written
	// and ErrConflict is returned; the caller decides whether to retry.
	Transact(ctx context.Context, path string, fn TxFunc) ([]byte, error)

	// Push appends value as a new child of path and returns its key. Keys
	// sort in append order.
	Push(ctx context.Context, path string, value []byte) (string, error)

	// Children returns the children of path in append order. A positive
	// limit returns only the most recent limit children.
	Children(ctx context.Context, path string, limit int) ([]Child, error)

	// Subscribe streams change events at or beneath prefix until ctx ends
	Subscribe(ctx context.Context, prefix string) (<-chan Event, error)

	// Close releases any resources held by the store
	Close() error
}

// Join builds a store path from segments
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Matches reports whether path is prefix itself or lies beneath it
func Matches(prefix, path string) bool {
	if prefix == "" || prefix == path {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}

// NewPushKey returns a unique key that sorts after every key generated
// before it by this process
func NewPushKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// IsRetryable reports whether err is a transient store condition
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}
