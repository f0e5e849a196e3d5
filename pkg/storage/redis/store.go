// Package redis implements storage.Store on Redis. Transactions use
// WATCH/MULTI so a concurrent writer aborts the commit, and change events
// travel over Redis pub/sub so every process sees them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/pkg/storage"
)

const defaultNamespace = "wagerline"

// Options configures the Redis store
type Options struct {
	Addr      string
	Password  string
	DB        int
	Namespace string // Key and channel prefix
}

// Store implements storage.Store using Redis
type Store struct {
	client    goredis.UniversalClient
	namespace string
	logger    *logging.Logger
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, opts Options, logger *logging.Logger) (*Store, error) {
	const op = "redis.New"

	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%s: %w: %v", op, storage.ErrUnavailable, err)
	}

	return NewWithClient(client, opts.Namespace, logger), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client goredis.UniversalClient, namespace string, logger *logging.Logger) *Store {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		client:    client,
		namespace: namespace,
		logger:    logger.Component("redis_store"),
	}
}

func (s *Store) nodeKey(path string) string {
	return s.namespace + ":node:" + path
}

func (s *Store) childrenKey(path string) string {
	return s.namespace + ":children:" + path
}

func (s *Store) channel(path string) string {
	return s.namespace + ":events:" + path
}

// Get reads the value at path
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.nodeKey(path)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return value, nil
}

// Transact watches path, applies fn and commits with MULTI/EXEC
func (s *Store) Transact(ctx context.Context, path string, fn storage.TxFunc) ([]byte, error) {
	key := s.nodeKey(path)

	var fnErr error
	var result []byte
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if errors.Is(err, goredis.Nil) {
			current = nil
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

		payload, err := json.Marshal(storage.Event{Path: path, Value: next})
		if err != nil {
			fnErr = err
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			pipe.Publish(ctx, s.channel(path), payload)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}, key)

	if fnErr != nil {
		return nil, fnErr
	}
	if errors.Is(err, goredis.TxFailedErr) {
		return nil, storage.ErrConflict
	}
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// Push appends value beneath path
func (s *Store) Push(ctx context.Context, path string, value []byte) (string, error) {
	child := storage.Child{Key: storage.NewPushKey(), Value: value}
	encoded, err := json.Marshal(child)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(storage.Event{Path: path, Key: child.Key, Value: value})
	if err != nil {
		return "", err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, s.childrenKey(path), encoded)
		pipe.Publish(ctx, s.channel(path), payload)
		return nil
	})
	if err != nil {
		return "", classify(err)
	}
	return child.Key, nil
}

// Children returns the children of path in append order
func (s *Store) Children(ctx context.Context, path string, limit int) ([]storage.Child, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := s.client.LRange(ctx, s.childrenKey(path), start, -1).Result()
	if err != nil {
		return nil, classify(err)
	}

	children := make([]storage.Child, 0, len(raw))
	for _, item := range raw {
		var c storage.Child
		if err := json.Unmarshal([]byte(item), &c); err != nil {
			return nil, fmt.Errorf("redis.Children: decoding child of %s: %w", path, err)
		}
		children = append(children, c)
	}
	return children, nil
}

// Subscribe streams change events at or beneath prefix. It returns once
// Redis has confirmed the subscription.
func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan storage.Event, error) {
	var patterns []string
	if prefix == "" {
		patterns = []string{s.channel("*")}
	} else {
		prefix = strings.TrimSuffix(prefix, "/")
		patterns = []string{s.channel(prefix), s.channel(prefix + "/*")}
	}

	pubsub := s.client.PSubscribe(ctx, patterns...)
	for range patterns {
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			return nil, classify(err)
		}
	}

	out := make(chan storage.Event, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev storage.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.Warn("dropping malformed event", "channel", msg.Channel, logging.Err(err))
					continue
				}
				select {
				case out <- ev:
				default:
					s.logger.Debug("subscriber lagging, event dropped", "path", ev.Path)
				}
			}
		}
	}()

	return out, nil
}

// Close closes the Redis client
func (s *Store) Close() error {
	return s.client.Close()
}

func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
}
