package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gamehost-backend/pkg/config"
)

// fakeCommands emulates the Lua scripts by identity.
type fakeCommands struct {
	data    map[string]string
	expiry  map[string]time.Duration
	evalErr error
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{data: map[string]string{}, expiry: map[string]time.Duration{}}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	f.expiry[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			n++
		}
		delete(f.data, k)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeCommands) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	k := keys[0]
	switch script {
	case fixedWindowScript:
		var n int64
		fmt.Sscan(f.data[k], &n)
		n++
		f.data[k] = fmt.Sprint(n)
		if n == 1 {
			f.expiry[k] = time.Duration(args[0].(int64)) * time.Millisecond
		}
		return redis.NewCmdResult(n, nil)
	case compareAndDeleteScript:
		if v, ok := f.data[k]; ok && v == args[0] {
			delete(f.data, k)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case compareAndSwapScript:
		if v, ok := f.data[k]; ok && v == args[0] {
			f.data[k] = args[1].(string)
			f.expiry[k] = time.Duration(args[2].(int64)) * time.Millisecond
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, errors.New("unknown script"))
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := &Client{cmd: fake}

	for i := int64(1); i <= 2; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "orders:user-1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
	}
	allowed, count, err := client.FixedWindowAllow(ctx, "orders:user-1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, time.Minute, fake.expiry["gh:rate_limit:orders:user-1"])

	fake.evalErr = errors.New("connection refused")
	_, _, err = client.FixedWindowAllow(ctx, "orders:user-1", 2, time.Minute)
	require.Error(t, err)
}

func TestCompareAndDeleteOnlyRemovesOwnValue(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newFakeCommands()}

	ok, err := client.SetNX(ctx, "gh:lock:cron", "owner-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = client.SetNX(ctx, "gh:lock:cron", "owner-2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	deleted, err := client.CompareAndDelete(ctx, "gh:lock:cron", "owner-2")
	require.NoError(t, err)
	assert.False(t, deleted)
	value, err := client.Get(ctx, "gh:lock:cron")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", value)

	deleted, err = client.CompareAndDelete(ctx, "gh:lock:cron", "owner-1")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = client.Get(ctx, "gh:lock:cron")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestZeroClientFailsClosed(t *testing.T) {
	client := &Client{}
	assert.ErrorIs(t, client.Ping(context.Background()), errNotConnected)
	_, _, err := client.FixedWindowAllow(context.Background(), "x", 1, time.Second)
	assert.ErrorIs(t, err, errNotConnected)
	assert.NoError(t, client.Close())
}

func TestKeys(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "gh:idempotency:evt:provisioning:42", client.IdempotencyKey("evt:provisioning", "42"))
	assert.Equal(t, "gh:idempotency:scope", client.IdempotencyKey("scope", " "))
	assert.Equal(t, "gh:rate_limit:webhooks:10.0.0.1", client.RateLimitKey("webhooks:10.0.0.1"))
	assert.Equal(t, "gh:lock:cron-worker:prod", client.LockKey("cron-worker:prod"))
}

func TestOptions(t *testing.T) {
	_, err := options(config.RedisConfig{})
	require.Error(t, err)

	opts, err := options(config.RedisConfig{URL: "redis://:pw@cache:6380/2", PoolSize: 7, ReadTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, time.Second, opts.ReadTimeout)

	opts, err = options(config.RedisConfig{Address: "localhost:6379", DB: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB)
}

func TestCompareAndSwapOnlyReplacesExpectedValue(t *testing.T) {
	fake := newFakeCommands()
	c := &Client{cmd: fake}
	ctx := context.Background()
	fake.data["gh:idempotency:k"] = "claim"

	swapped, err := c.CompareAndSwap(ctx, "gh:idempotency:k", "other", "record", time.Hour)
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Equal(t, "claim", fake.data["gh:idempotency:k"])

	swapped, err = c.CompareAndSwap(ctx, "gh:idempotency:k", "claim", "record", time.Hour)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, "record", fake.data["gh:idempotency:k"])
	assert.Equal(t, time.Hour, fake.expiry["gh:idempotency:k"])
}
