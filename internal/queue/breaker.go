package queue

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/exp/slog"
)

// BreakerPublisher stops publishing for a while after the transport keeps
// failing. Rejected calls return gobreaker.ErrOpenState or
// gobreaker.ErrTooManyRequests.
type BreakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

type BreakerSettings struct {
	Name string
	// Threshold is the number of requests in a window before the failure
	// ratio is considered.
	Threshold uint32
	Timeout   time.Duration
	// OnStateChange, when set, is called on every transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

func NewBreakerPublisher(next Publisher, logger *slog.Logger, s BreakerSettings) *BreakerPublisher {
	if s.Threshold == 0 {
		s.Threshold = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	if s.Name == "" {
		s.Name = "queue-publish"
	}

	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    s.Timeout,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.Threshold && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if s.OnStateChange != nil {
				s.OnStateChange(name, from, to)
			}
		},
	}

	return &BreakerPublisher{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *BreakerPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.next.Publish(ctx, channel, payload)
	})
	return err
}

func (p *BreakerPublisher) State() gobreaker.State {
	return p.cb.State()
}
