package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fadedpez/wagerline/pkg/storage"
)

// Store is a mock implementation of storage.Store
type Store struct {
	mock.Mock
}

func New() *Store {
	return &Store{}
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	args := s.Called(ctx, path)
	if value, ok := args.Get(0).([]byte); ok {
		return value, args.Error(1)
	}
	return nil, args.Error(1)
}

// Transact records the call. When the expectation returns a nil error and
// a []byte current value, fn is applied to it so the caller's mutation
// logic still runs.
func (s *Store) Transact(ctx context.Context, path string, fn storage.TxFunc) ([]byte, error) {
	args := s.Called(ctx, path, fn)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	current, _ := args.Get(0).([]byte)
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}
	return next, nil
}

func (s *Store) Push(ctx context.Context, path string, value []byte) (string, error) {
	args := s.Called(ctx, path, value)
	return args.String(0), args.Error(1)
}

func (s *Store) Children(ctx context.Context, path string, limit int) ([]storage.Child, error) {
	args := s.Called(ctx, path, limit)
	if children, ok := args.Get(0).([]storage.Child); ok {
		return children, args.Error(1)
	}
	return nil, args.Error(1)
}

func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan storage.Event, error) {
	args := s.Called(ctx, prefix)
	if ch, ok := args.Get(0).(<-chan storage.Event); ok {
		return ch, args.Error(1)
	}
	if ch, ok := args.Get(0).(chan storage.Event); ok {
		return ch, args.Error(1)
	}
	return nil, args.Error(1)
}

func (s *Store) Close() error {
	args := s.Called()
	return args.Error(0)
}

var _ storage.Store = (*Store)(nil)
