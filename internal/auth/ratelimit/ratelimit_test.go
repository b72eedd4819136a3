package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/redis"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestWindow_AdmitsUpToLimit(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w := NewWindow(3, time.Hour, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := w.Admit(ctx)
		require.NoError(t, err)
		assert.True(t, ok, "admission %d", i)
		clock.Advance(time.Second)
	}

	ok, err := w.Admit(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, w.Count())
}

func TestWindow_SlidesRatherThanResets(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w := NewWindow(2, time.Hour, WithClock(clock.Now))
	ctx := context.Background()

	ok, _ := w.Admit(ctx) // t=0
	require.True(t, ok)
	clock.Advance(30 * time.Minute)
	ok, _ = w.Admit(ctx) // t=30m
	require.True(t, ok)

	clock.Advance(29 * time.Minute) // t=59m, both still inside the window
	ok, _ = w.Admit(ctx)
	assert.False(t, ok)

	clock.Advance(time.Minute) // t=60m, first admission falls out
	ok, _ = w.Admit(ctx)
	assert.True(t, ok)

	ok, _ = w.Admit(ctx) // t=60m, 30m and 60m still inside
	assert.False(t, ok)
}

func TestWindow_RejectionsDoNotConsume(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w := NewWindow(1, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	ok, _ := w.Admit(ctx)
	require.True(t, ok)
	for i := 0; i < 5; i++ {
		ok, _ = w.Admit(ctx)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, w.Count())

	clock.Advance(time.Minute + time.Millisecond)
	ok, _ = w.Admit(ctx)
	assert.True(t, ok)
}

func TestWindow_Reset(t *testing.T) {
	w := NewWindow(1, time.Hour)
	ctx := context.Background()

	ok, _ := w.Admit(ctx)
	require.True(t, ok)
	w.Reset()
	ok, _ = w.Admit(ctx)
	assert.True(t, ok)
}

func TestWindow_Concurrent(t *testing.T) {
	w := NewWindow(50, time.Hour)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := w.Admit(ctx); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, admitted)
}

func newTestRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisWindow_Admit(t *testing.T) {
	client := newTestRedis(t)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rw := NewRedisWindow(client, "ingest", 2, time.Hour)
	rw.now = clock.Now
	ctx := context.Background()

	ok, err := rw.Admit(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(10 * time.Minute)
	ok, err = rw.Admit(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rw.Admit(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := rw.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	clock.Advance(50*time.Minute + time.Millisecond)
	ok, err = rw.Admit(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisWindow_SharedAcrossInstances(t *testing.T) {
	client := newTestRedis(t)
	a := NewRedisWindow(client, "ingest", 1, time.Hour)
	b := NewRedisWindow(client, "ingest", 1, time.Hour)
	other := NewRedisWindow(client, "other", 1, time.Hour)
	ctx := context.Background()

	ok, err := a.Admit(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Admit(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second instance must see the first admission")

	ok, err = other.Admit(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "distinct keys are independent")
}

func TestRedisWindow_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	rw := NewRedisWindow(client, "ingest", 1, time.Hour)
	_, err = rw.Admit(context.Background())
	assert.Error(t, err)
}
