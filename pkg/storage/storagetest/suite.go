// Package storagetest holds the behavioural suite every storage.Store
// backend must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/wagerline/pkg/storage"
)

// Suite exercises a storage.Store. Backends embed it and set NewStore.
type Suite struct {
	suite.Suite

	// NewStore returns an empty store for each test
	NewStore func() storage.Store

	store storage.Store
	ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.store = s.NewStore()
	s.ctx = context.Background()
}

func (s *Suite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

// Store returns the store under test
func (s *Suite) Store() storage.Store {
	return s.store
}

func (s *Suite) TestGetMissing() {
	_, err := s.store.Get(s.ctx, "accounts/missing")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *Suite) TestTransactCreateAndUpdate() {
	out, err := s.store.Transact(s.ctx, "accounts/a1", func(current []byte) ([]byte, error) {
		s.Nil(current)
		return []byte("1"), nil
	})
	s.Require().NoError(err)
	s.Equal([]byte("1"), out)

	out, err = s.store.Transact(s.ctx, "accounts/a1", func(current []byte) ([]byte, error) {
		s.Equal([]byte("1"), current)
		return []byte("2"), nil
	})
	s.Require().NoError(err)
	s.Equal([]byte("2"), out)

	got, err := s.store.Get(s.ctx, "accounts/a1")
	s.Require().NoError(err)
	s.Equal([]byte("2"), got)
}

func (s *Suite) TestTransactAbort() {
	boom := errors.New("boom")
	_, err := s.store.Transact(s.ctx, "accounts/a1", func([]byte) ([]byte, error) {
		return nil, boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.Get(s.ctx, "accounts/a1")
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *Suite) TestTransactNilLeavesValue() {
	_, err := s.store.Transact(s.ctx, "accounts/a1", func([]byte) ([]byte, error) {
		return []byte("keep"), nil
	})
	s.Require().NoError(err)

	out, err := s.store.Transact(s.ctx, "accounts/a1", func([]byte) ([]byte, error) {
		return nil, nil
	})
	s.Require().NoError(err)
	s.Equal([]byte("keep"), out)
}

func (s *Suite) TestTransactDetectsConcurrentCreate() {
	_, err := s.store.Transact(s.ctx, "accounts/race", func(current []byte) ([]byte, error) {
		// Another writer creates the path while this transaction is open
		_, innerErr := s.store.Transact(s.ctx, "accounts/race", func([]byte) ([]byte, error) {
			return []byte("inner"), nil
		})
		s.Require().NoError(innerErr)
		return []byte("outer"), nil
	})
	s.ErrorIs(err, storage.ErrConflict)

	got, err := s.store.Get(s.ctx, "accounts/race")
	s.Require().NoError(err)
	s.Equal([]byte("inner"), got)
}

func (s *Suite) TestConcurrentIncrements() {
	const workers = 20
	path := "counters/c1"

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := s.store.Transact(s.ctx, path, func(current []byte) ([]byte, error) {
					n := 0
					if current != nil {
						n, _ = strconv.Atoi(string(current))
					}
					return []byte(strconv.Itoa(n + 1)), nil
				})
				if err == nil {
					return
				}
				if !storage.IsRetryable(err) {
					s.Failf("unexpected error", "%v", err)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	got, err := s.store.Get(s.ctx, path)
	s.Require().NoError(err)
	s.Equal(strconv.Itoa(workers), string(got))
}

func (s *Suite) TestPushAndChildren() {
	var keys []string
	for i := 0; i < 5; i++ {
		key, err := s.store.Push(s.ctx, "ledger/a1", []byte(fmt.Sprintf("e%d", i)))
		s.Require().NoError(err)
		keys = append(keys, key)
	}

	all, err := s.store.Children(s.ctx, "ledger/a1", 0)
	s.Require().NoError(err)
	s.Require().Len(all, 5)
	for i, c := range all {
		s.Equal(keys[i], c.Key)
		s.Equal(fmt.Sprintf("e%d", i), string(c.Value))
	}

	recent, err := s.store.Children(s.ctx, "ledger/a1", 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal("e3", string(recent[0].Value))
	s.Equal("e4", string(recent[1].Value))

	none, err := s.store.Children(s.ctx, "ledger/empty", 0)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *Suite) TestSubscribe() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	events, err := s.store.Subscribe(ctx, "rounds")
	s.Require().NoError(err)

	_, err = s.store.Transact(s.ctx, "accounts/a1", func([]byte) ([]byte, error) { return []byte("x"), nil })
	s.Require().NoError(err)
	_, err = s.store.Transact(s.ctx, "rounds/wingo", func([]byte) ([]byte, error) { return []byte("state"), nil })
	s.Require().NoError(err)

	select {
	case ev := <-events:
		s.Equal("rounds/wingo", ev.Path)
		s.Equal([]byte("state"), ev.Value)
	case <-time.After(2 * time.Second):
		s.Fail("timed out waiting for event")
	}
}
