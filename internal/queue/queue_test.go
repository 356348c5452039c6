package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	q := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:", time.Second)
	t.Cleanup(func() { q.Close() })

	return mr, q
}

func TestRedisPublishReceive(t *testing.T) {
	mr, q := setupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, q.Ping(ctx))
	require.NoError(t, q.Publish(ctx, RequestChannel, []byte("first")))
	require.NoError(t, q.Publish(ctx, RequestChannel, []byte("second")))

	// messages live in a prefixed list
	require.True(t, mr.Exists("test:"+RequestChannel))
	n, err := q.Len(ctx, RequestChannel)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	got, err := q.Receive(ctx, RequestChannel)
	require.NoError(t, err)
	require.Equal(t, "first", string(got))

	got, err = q.Receive(ctx, RequestChannel)
	require.NoError(t, err)
	require.Equal(t, "second", string(got))

	_, err = q.Receive(ctx, ResponseChannel)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestRedisPublishFailure(t *testing.T) {
	mr, q := setupMiniRedis(t)
	mr.Close()

	err := q.Publish(context.Background(), RequestChannel, []byte("x"))
	require.Error(t, err)
}

func TestMemoryPublishReceive(t *testing.T) {
	q := NewMemory()
	q.pollTimeout = 10 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, ResponseChannel, []byte("hello")))

	got, err := q.Receive(ctx, ResponseChannel)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	_, err = q.Receive(ctx, ResponseChannel)
	require.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, q.Close())
	require.ErrorIs(t, q.Publish(ctx, ResponseChannel, []byte("late")), ErrClosed)
	_, err = q.Receive(ctx, ResponseChannel)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, q.Ping(ctx), ErrClosed)
}

func TestMemoryPublishCopiesPayload(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	payload := []byte("abc")
	require.NoError(t, q.Publish(ctx, RequestChannel, payload))
	payload[0] = 'x'

	got, err := q.Receive(ctx, RequestChannel)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}

func TestPoolHandlesEveryMessage(t *testing.T) {
	_, q := setupMiniRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const total = 30
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		done = make(chan struct{})
	)
	handler := func(ctx context.Context, payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		seen[string(payload)] = true
		if len(seen) == total {
			close(done)
		}
		switch string(payload) {
		case "msg-3":
			return errors.New("boom")
		case "msg-7":
			panic("handler bug")
		}
		return nil
	}

	pool := NewPool(testLogger(), q, RequestChannel, 4, handler)
	pool.Start(ctx)

	for i := 0; i < total; i++ {
		require.NoError(t, q.Publish(ctx, RequestChannel, []byte(fmt.Sprintf("msg-%d", i))))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("not every message was handled")
	}

	cancel()
	pool.Wait()
}

func TestPoolStopsOnClose(t *testing.T) {
	q := NewMemory()
	pool := NewPool(testLogger(), q, RequestChannel, 2, func(context.Context, []byte) error { return nil })
	pool.Start(context.Background())

	require.NoError(t, q.Close())

	stopped := make(chan struct{})
	go func() {
		pool.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after the queue closed")
	}
}

type failingPublisher struct {
	calls atomic.Int32
}

func (p *failingPublisher) Publish(context.Context, string, []byte) error {
	p.calls.Add(1)
	return errors.New("broker down")
}

func TestBreakerPublisherOpens(t *testing.T) {
	next := &failingPublisher{}
	var transitions []gobreaker.State
	p := NewBreakerPublisher(next, testLogger(), BreakerSettings{
		Threshold: 3,
		Timeout:   time.Minute,
		OnStateChange: func(_ string, _, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.Error(t, p.Publish(ctx, RequestChannel, []byte("x")))
	}
	require.Equal(t, gobreaker.StateOpen, p.State())
	require.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	err := p.Publish(ctx, RequestChannel, []byte("x"))
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.EqualValues(t, 3, next.calls.Load(), "open breaker must not reach the transport")
}

func TestBreakerPublisherPassesThrough(t *testing.T) {
	q := NewMemory()
	p := NewBreakerPublisher(q, testLogger(), BreakerSettings{})

	require.NoError(t, p.Publish(context.Background(), RequestChannel, []byte("ok")))
	got, err := q.Receive(context.Background(), RequestChannel)
	require.NoError(t, err)
	require.Equal(t, "ok", string(got))
}
