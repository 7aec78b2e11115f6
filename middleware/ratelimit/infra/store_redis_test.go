package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"booking-gatekeeper/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, WithKeyPrefix("test:")), mr
}

func TestRedisStore_BurstRejectsEleventh(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	windows := domain.DefaultWindows()

	for i := 0; i < 10; i++ {
		adm, err := s.Admit(ctx, "client_a", t0.Add(time.Duration(i)*time.Second), windows)
		require.NoError(t, err)
		require.Truef(t, adm.Allowed, "request %d", i+1)
		assert.Equal(t, i, adm.Counts[1])
	}

	adm, err := s.Admit(ctx, "client_a", t0.Add(10*time.Second), windows)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, domain.Burst, windows[adm.Exceeded].Name)
	assert.Equal(t, []int{10, 10}, adm.Counts)
}

func TestRedisStore_OldEntriesArePruned(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	windows := domain.DefaultWindows()

	for i := 0; i < 10; i++ {
		at := t0.Add(time.Duration(i) * 6500 * time.Millisecond)
		adm, err := s.Admit(ctx, "client_a", at, windows)
		require.NoError(t, err)
		require.True(t, adm.Allowed)
	}

	adm, err := s.Admit(ctx, "client_a", t0.Add(61*time.Second), windows)
	require.NoError(t, err)
	assert.True(t, adm.Allowed)
}

func TestRedisStore_SustainedLimit(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	windows := domain.DefaultWindows()

	for i := 0; i < 100; i++ {
		at := t0.Add(time.Duration(i) * 30 * time.Second)
		adm, err := s.Admit(ctx, "client_a", at, windows)
		require.NoError(t, err)
		require.Truef(t, adm.Allowed, "request %d", i+1)
	}

	adm, err := s.Admit(ctx, "client_a", t0.Add(50*time.Minute), windows)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, domain.Sustained, windows[adm.Exceeded].Name)
}

func TestRedisStore_ConcurrentAdmitsNeverOvershoot(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	windows := domain.DefaultWindows()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := s.Admit(ctx, "client_a", t0, windows)
			if err == nil && adm.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
}

func TestRedisStore_KeyLayoutAndExpiry(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	_, err := s.Admit(ctx, "client_a", t0, domain.DefaultWindows())
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:rate_limit:{client_a}"))
	assert.True(t, mr.Exists("test:burst_limit:{client_a}"))
	assert.Equal(t, time.Hour, mr.TTL("test:rate_limit:{client_a}"))
	assert.Equal(t, time.Minute, mr.TTL("test:burst_limit:{client_a}"))
}

func TestRedisStore_CountsAndReset(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	windows := domain.DefaultWindows()

	for i := 0; i < 3; i++ {
		_, err := s.Admit(ctx, "client_a", t0.Add(time.Duration(i)*time.Second), windows)
		require.NoError(t, err)
	}

	counts, err := s.Counts(ctx, "client_a", t0.Add(2*time.Second), windows)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, counts)

	require.NoError(t, s.Reset(ctx, "client_a", windows))

	counts, err = s.Counts(ctx, "client_a", t0.Add(2*time.Second), windows)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, counts)
}

func TestRedisStore_UnavailableServer(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	_, err := s.Admit(context.Background(), "client_a", t0, domain.DefaultWindows())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Error(t, s.Ping(context.Background()))
}
