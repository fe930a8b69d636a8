package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"meeting-room-backend/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: addr})
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
}

func TestInitRedis_MockMode(t *testing.T) {
	t.Cleanup(CloseRedis)

	require.NoError(t, InitRedis(context.Background(), config.RedisConfig{Mock: true}))
	assert.True(t, IsMockMode())
	assert.False(t, Available())

	_, err := GetClient()
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
}

func TestInitRedis_Connected(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Cleanup(CloseRedis)

	require.NoError(t, InitRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()}))
	assert.False(t, IsMockMode())
	assert.True(t, Available())

	client, err := GetClient()
	require.NoError(t, err)
	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	store.Set("k", []byte("one"))
	v, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "one", string(v))

	err = store.Update("k", func(current []byte, found bool) ([]byte, error) {
		assert.True(t, found)
		return append(current, "-two"...), nil
	})
	require.NoError(t, err)
	v, _ = store.Get("k")
	assert.Equal(t, "one-two", string(v))

	boom := errors.New("boom")
	err = store.Update("k", func([]byte, bool) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	v, _ = store.Get("k")
	assert.Equal(t, "one-two", string(v), "failed update must not write")
}

func TestDistributedLock_Serializes(t *testing.T) {
	_, client := newTestRedis(t)
	locks := NewDistributedLockService(client).WithRetry(200, 5*time.Millisecond)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
		counter int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locks.WithLock(context.Background(), "lock:test", time.Second, func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				counter++
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 10, counter)
}

func TestDistributedLock_NotAcquired(t *testing.T) {
	_, client := newTestRedis(t)
	locks := NewDistributedLockService(client).WithRetry(2, time.Millisecond)

	held, err := locks.AcquireLock(context.Background(), "lock:busy", 10*time.Second)
	require.NoError(t, err)
	defer locks.ReleaseLock(context.Background(), held)

	called := false
	err = locks.WithLock(context.Background(), "lock:busy", time.Second, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, called)
}

func TestDistributedLock_PropagatesActionError(t *testing.T) {
	_, client := newTestRedis(t)
	locks := NewDistributedLockService(client)

	boom := errors.New("boom")
	err := locks.WithLock(context.Background(), "lock:err", time.Second, func() error { return boom })
	assert.ErrorIs(t, err, boom)

	// 锁已释放，可以再次获取
	err = locks.WithLock(context.Background(), "lock:err", time.Second, func() error { return nil })
	assert.NoError(t, err)
}

func TestTokenBucketRateLimiter(t *testing.T) {
	_, client := newTestRedis(t)
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	limiter := NewTokenBucketRateLimiter(client, "test", 1, 2).WithClock(clock)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _ = limiter.Allow(ctx)
	assert.True(t, allowed)

	allowed, _ = limiter.Allow(ctx)
	assert.False(t, allowed, "bucket is empty within the same second")

	clock.Advance(time.Second)
	allowed, _ = limiter.Allow(ctx)
	assert.True(t, allowed, "one token refilled after a second")
}

func TestTokenBucketRateLimiter_NoClient(t *testing.T) {
	limiter := NewTokenBucketRateLimiter(nil, "test", 1, 1)
	_, err := limiter.Allow(context.Background())
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
}

func TestLocalUserRateLimiter(t *testing.T) {
	limiter := NewLocalUserRateLimiter(1000, 1000, 1, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.AllowUser(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _ := limiter.AllowUser(ctx, "alice")
	assert.False(t, allowed)

	allowed, _ = limiter.AllowUser(ctx, "bob")
	assert.True(t, allowed, "users have independent buckets")

	allowed, _ = limiter.AllowUser(ctx, "")
	assert.True(t, allowed, "anonymous requests only pass the global bucket")
}

func TestUserRateLimiter_EvictsIdleUsers(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC))
	limiter := NewLocalUserRateLimiter(1000, 1000, 1, 1).WithClock(clock).WithIdleTTL(10 * time.Minute)

	alice := limiter.GetUserLimiter("alice")
	limiter.GetUserLimiter("bob")
	assert.Equal(t, 2, limiter.Size())

	clock.Advance(5 * time.Minute)
	assert.Same(t, alice, limiter.GetUserLimiter("alice"))

	// bob 闲置 11 分钟被清理，alice 只闲置了 6 分钟
	clock.Advance(6 * time.Minute)
	limiter.GetUserLimiter("carol")
	assert.Equal(t, 2, limiter.Size())
	assert.Same(t, alice, limiter.GetUserLimiter("alice"))

	for i := 0; i < 100; i++ {
		limiter.GetUserLimiter(fmt.Sprintf("voter-%d", i))
	}
	assert.Equal(t, 102, limiter.Size())

	clock.Advance(11 * time.Minute)
	limiter.GetUserLimiter("dave")
	assert.Equal(t, 1, limiter.Size(), "idle users do not accumulate")
}

func TestRedisUserRateLimiter_GlobalBucket(t *testing.T) {
	_, client := newTestRedis(t)
	limiter := NewUserRateLimiter(client, "api", 1, 1, 100, 100)
	ctx := context.Background()

	allowed, err := limiter.AllowUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, allowed)

	// 全局桶只有一个令牌；如果恰好跨过整秒会补充一个，因此只断言不会出错
	_, err = limiter.AllowUser(ctx, "bob")
	assert.NoError(t, err)
}
