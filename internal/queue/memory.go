package queue

import (
	"context"
	"sync"
	"time"
)

const memoryBuffer = 1024

// Memory is an in-process Queue for tests and single-binary setups.
type Memory struct {
	mu          sync.Mutex
	channels    map[string]chan []byte
	closed      chan struct{}
	closeOnce   sync.Once
	pollTimeout time.Duration
}

func NewMemory() *Memory {
	return &Memory{
		channels:    make(map[string]chan []byte),
		closed:      make(chan struct{}),
		pollTimeout: defaultPollTimeout,
	}
}

func (q *Memory) channel(name string) chan []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.channels[name]
	if !ok {
		ch = make(chan []byte, memoryBuffer)
		q.channels[name] = ch
	}
	return ch
}

func (q *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	msg := make([]byte, len(payload))
	copy(msg, payload)

	select {
	case <-q.closed:
		return ErrClosed
	default:
	}

	select {
	case q.channel(channel) <- msg:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Memory) Receive(ctx context.Context, channel string) ([]byte, error) {
	timer := time.NewTimer(q.pollTimeout)
	defer timer.Stop()

	select {
	case msg := <-q.channel(channel):
		return msg, nil
	case <-q.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrEmpty
	}
}

func (q *Memory) Ping(ctx context.Context) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
		return nil
	}
}

func (q *Memory) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
