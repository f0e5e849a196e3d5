package redis

import (
	"context"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/wagerline/pkg/storage"
	"github.com/fadedpez/wagerline/pkg/storage/storagetest"
)

// Runs against a live server only when WAGERLINE_TEST_REDIS_ADDR is set
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("WAGERLINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WAGERLINE_TEST_REDIS_ADDR not set")
	}

	suite.Run(t, &storagetest.Suite{
		NewStore: func() storage.Store {
			client := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
			require.NoError(t, client.FlushDB(context.Background()).Err())
			return NewWithClient(client, "wagerline_test", nil)
		},
	})
}

func TestNewUnreachable(t *testing.T) {
	_, err := New(context.Background(), Options{Addr: "127.0.0.1:1"}, nil)
	require.ErrorIs(t, err, storage.ErrUnavailable)
}
