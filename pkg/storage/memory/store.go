// Package memory provides an in-process storage.Store with optimistic
// version checks, used in tests and single-node development.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/fadedpez/wagerline/pkg/storage"
)

type node struct {
	value   []byte
	version int64
}

// Store implements storage.Store in memory
type Store struct {
	mu       sync.RWMutex
	nodes    map[string]*node
	children map[string][]storage.Child
	notifier *storage.Notifier
	closed   bool
}

// New creates an empty memory store
func New() *Store {
	return &Store{
		nodes:    make(map[string]*node),
		children: make(map[string][]storage.Child),
		notifier: storage.NewNotifier(),
	}
}

// Get reads the value at path
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	n, ok := s.nodes[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(n.value), nil
}

// Transact reads path, applies fn outside the lock and commits only if no
// other writer touched path in between
func (s *Store) Transact(ctx context.Context, path string, fn storage.TxFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, storage.ErrClosed
	}
	var current []byte
	var version int64
	if n, ok := s.nodes[path]; ok {
		current = bytes.Clone(n.value)
		version = n.version
	}
	s.mu.RUnlock()

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	s.mu.Lock()
	var latest int64
	if n, ok := s.nodes[path]; ok {
		latest = n.version
	}
	if latest != version {
		s.mu.Unlock()
		return nil, storage.ErrConflict
	}
	stored := bytes.Clone(next)
	s.nodes[path] = &node{value: stored, version: version + 1}
	s.mu.Unlock()

	s.notifier.Publish(storage.Event{Path: path, Value: bytes.Clone(stored)})
	return bytes.Clone(stored), nil
}

// Push appends value beneath path
func (s *Store) Push(ctx context.Context, path string, value []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", storage.ErrClosed
	}
	key := storage.NewPushKey()
	s.children[path] = append(s.children[path], storage.Child{Key: key, Value: bytes.Clone(value)})
	s.mu.Unlock()

	s.notifier.Publish(storage.Event{Path: path, Key: key, Value: bytes.Clone(value)})
	return key, nil
}

// Children returns the children of path in append order
func (s *Store) Children(ctx context.Context, path string, limit int) ([]storage.Child, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	all := s.children[path]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}

	out := make([]storage.Child, len(all))
	for i, c := range all {
		out[i] = storage.Child{Key: c.Key, Value: bytes.Clone(c.Value)}
	}
	return out, nil
}

// Subscribe streams change events at or beneath prefix
func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan storage.Event, error) {
	return s.notifier.Subscribe(ctx, prefix)
}

// Close stops the store and closes all subscriptions
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.notifier.Close()
	return nil
}
