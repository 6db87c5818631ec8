package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachable returns a client pointed at a port nothing listens on.
func unreachable(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestKVStore_Key(t *testing.T) {
	s := NewKVStore(unreachable(t), DefaultPrefix, 0)
	assert.Equal(t, "tender-admin:client:a:token", s.key("client:a:token"))
}

func TestKVStore_ErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	s := NewKVStore(unreachable(t), DefaultPrefix, time.Hour)

	_, _, err := s.Get(ctx, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get key")

	err = s.SetMany(ctx, map[string]string{"a": "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set keys")

	err = s.Remove(ctx, "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to remove keys")

	assert.NoError(t, s.Remove(ctx), "removing nothing does not touch redis")
	assert.Error(t, s.Ping(ctx))
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-redis-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse redis url")
}
