package cache

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (RedisClient, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client), mr
}

func TestRedisClient_GetMiss(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Get(context.Background(), "device:values:nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisClient_SetGetDelete(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "device:values:1", `{"fire_limit":3}`, time.Minute))
	val, err := c.Get(ctx, "device:values:1")
	require.NoError(t, err)
	assert.Equal(t, `{"fire_limit":3}`, val)
	assert.Equal(t, time.Minute, mr.TTL("device:values:1"))

	require.NoError(t, c.Delete(ctx, "device:values:1"))
	_, err = c.Get(ctx, "device:values:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisClient_KeysByPrefix(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("device:values:a", "{}"))
	require.NoError(t, mr.Set("device:values:b", "{}"))
	require.NoError(t, mr.Set("session:x", "1"))

	keys, err := c.Keys(ctx, "device:values:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"device:values:a", "device:values:b"}, keys)
}

func TestRedisClient_Unavailable(t *testing.T) {
	c, mr := newTestClient(t)
	mr.Close()

	_, err := c.Get(context.Background(), "device:values:1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisClient_UpdateCreatesMissingKey(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	err := c.Update(ctx, "device:values:1", func(current string, miss bool) (string, error) {
		assert.True(t, miss)
		assert.Empty(t, current)
		return "created", nil
	}, time.Minute)
	require.NoError(t, err)

	val, err := mr.Get("device:values:1")
	require.NoError(t, err)
	assert.Equal(t, "created", val)
	assert.Equal(t, time.Minute, mr.TTL("device:values:1"))
}

func TestRedisClient_UpdateAbortsOnError(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("device:values:1", "original"))

	boom := errors.New("boom")
	err := c.Update(ctx, "device:values:1", func(current string, miss bool) (string, error) {
		return "", boom
	}, 0)
	assert.ErrorIs(t, err, boom)

	val, err := mr.Get("device:values:1")
	require.NoError(t, err)
	assert.Equal(t, "original", val)
}

func TestRedisClient_UpdateRetriesAfterConcurrentWrite(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("device:values:1", "a"))

	calls := 0
	err := c.Update(ctx, "device:values:1", func(current string, miss bool) (string, error) {
		calls++
		if calls == 1 {
			// another writer commits between our read and our write
			require.NoError(t, mr.Set("device:values:1", "b"))
		}
		return current + "+mine", nil
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	val, err := mr.Get("device:values:1")
	require.NoError(t, err)
	assert.Equal(t, "b+mine", val)
}

func TestRedisClient_UpdateConcurrentIncrements(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	const writers, rounds = 4, 25
	for round := 0; round < rounds; round++ {
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := c.Update(ctx, "counter", func(current string, miss bool) (string, error) {
					n := 0
					if !miss {
						n, _ = strconv.Atoi(current)
					}
					return strconv.Itoa(n + 1), nil
				}, 0)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
	}

	val, err := mr.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(writers*rounds), val)
}
