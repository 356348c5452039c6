package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/exp/slog"
)

// Handler processes one message. A returned error is logged; it never stops
// the pool.
type Handler func(ctx context.Context, payload []byte) error

// Pool runs a fixed number of workers that receive from one channel and pass
// each message to a Handler.
type Pool struct {
	source  Source
	channel string
	workers int
	handler Handler
	logger  *slog.Logger

	// errBackoff is the pause after a transport error.
	errBackoff time.Duration

	wg sync.WaitGroup
}

func NewPool(logger *slog.Logger, source Source, channel string, workers int, handler Handler) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		source:     source,
		channel:    channel,
		workers:    workers,
		handler:    handler,
		logger:     logger.With(slog.String("channel", channel)),
		errBackoff: 500 * time.Millisecond,
	}
}

// Start launches the workers. They stop when ctx is done or the source is
// closed; use Wait to block until they have.
func (p *Pool) Start(ctx context.Context) {
	for id := 0; id < p.workers; id++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.work(ctx, id)
		}(id)
	}
	p.logger.Info("workers started", slog.Int("workers", p.workers))
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) work(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		payload, err := p.source.Receive(ctx, p.channel)
		switch {
		case err == nil:
		case errors.Is(err, ErrEmpty):
			continue
		case errors.Is(err, ErrClosed), ctx.Err() != nil:
			return
		default:
			p.logger.Error("receiving message", slog.Int("worker", id), slog.Any("err", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.errBackoff):
			}
			continue
		}

		p.handle(ctx, id, payload)
	}
}

func (p *Pool) handle(ctx context.Context, id int, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panicked", slog.Int("worker", id), slog.Any("panic", r))
		}
	}()

	if err := p.handler(ctx, payload); err != nil {
		p.logger.Warn("handling message", slog.Int("worker", id), slog.Any("err", err))
	}
}
