package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"github.com/alovak/cardflow-bridge/internal/correlation"
	"github.com/alovak/cardflow-bridge/internal/iso8583"
	"github.com/alovak/cardflow-bridge/internal/metrics"
	"github.com/alovak/cardflow-bridge/internal/pan"
	"github.com/alovak/cardflow-bridge/internal/queue"
	"github.com/alovak/cardflow-bridge/models"
)

var (
	// ErrNotFound is returned for correlation ids that are unknown, already
	// taken or expired.
	ErrNotFound = errors.New("not found")
	// ErrPublish wraps transport failures while sending a request.
	ErrPublish = errors.New("publish failed")
)

// Result is what a caller gets back for one attempt: either the final
// response or a pending status to poll with.
type Result struct {
	CorrelationID string                        `json:"correlationId"`
	Status        string                        `json:"status"`
	Response      *models.AuthorizationResponse `json:"response,omitempty"`
}

func (r *Result) Pending() bool { return r.Response == nil }

func pendingResult(id string) *Result {
	return &Result{CorrelationID: id, Status: correlation.StatusPending.String()}
}

func resolvedResult(id string, resp *models.AuthorizationResponse) *Result {
	return &Result{CorrelationID: id, Status: correlation.StatusResolved.String(), Response: resp}
}

// Service sends authorization requests to the request channel and matches
// the responses coming back on the response channel.
type Service struct {
	codec     *iso8583.Codec
	registry  *correlation.Registry
	publisher queue.Publisher
	metrics   *metrics.Gateway
	logger    *slog.Logger
}

func NewService(logger *slog.Logger, codec *iso8583.Codec, registry *correlation.Registry, publisher queue.Publisher, m *metrics.Gateway) *Service {
	return &Service{
		codec:     codec,
		registry:  registry,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Submit encodes req, registers its correlation id and publishes it, in that
// order. With wait > 0 it blocks until the response arrives or wait elapses;
// on timeout the result is pending. wait is capped at the registry's MaxWait.
func (s *Service) Submit(ctx context.Context, req models.AuthorizationRequest, wait time.Duration) (*Result, error) {
	id := req.CorrelationID
	logger := s.logger.With(slog.String("correlation_id", id))

	msg, err := s.codec.EncodeRequest(&req)
	if err != nil {
		s.metrics.Submissions.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	pending := s.registry.Register(id)

	if err := s.publisher.Publish(ctx, queue.RequestChannel, msg); err != nil {
		s.registry.Forget(id)
		s.metrics.PublishFailures.Inc()
		s.metrics.Submissions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	logger.Info("authorization request published",
		slog.String("stan", req.STAN),
		slog.String("pan", pan.Mask(req.Card.Number)),
		slog.String("amount", req.Amount.String()),
	)

	if wait <= 0 {
		s.metrics.Submissions.WithLabelValues("pending").Inc()
		return pendingResult(id), nil
	}

	if limit := s.registry.MaxWait(); wait > limit {
		wait = limit
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	resp, err := pending.Wait(waitCtx)
	s.metrics.WaitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Info("no response within wait, answering pending", slog.Duration("wait", wait))
		s.metrics.Submissions.WithLabelValues("pending").Inc()
		return pendingResult(id), nil
	}

	// the response was handed over; drop it from the registry
	s.registry.Take(id)
	s.metrics.Submissions.WithLabelValues(outcome(resp)).Inc()
	return resolvedResult(id, resp), nil
}

// Status returns the response for id once, then ErrNotFound.
func (s *Service) Status(id string) (*Result, error) {
	if resp, ok := s.registry.Take(id); ok {
		return resolvedResult(id, resp), nil
	}
	if s.registry.Status(id) == correlation.StatusPending {
		return pendingResult(id), nil
	}
	return nil, fmt.Errorf("correlation id %q: %w", id, ErrNotFound)
}

// HandleResponse decodes one message from the response channel and resolves
// its correlation id.
func (s *Service) HandleResponse(ctx context.Context, payload []byte) error {
	resp, err := s.codec.DecodeResponse(payload)
	if err != nil {
		s.metrics.Responses.WithLabelValues("decode_error").Inc()
		return fmt.Errorf("decoding response: %w", err)
	}

	matched := s.registry.Resolve(resp.CorrelationID, resp)
	result := "resolved"
	if !matched {
		result = "stored"
	}
	s.metrics.Responses.WithLabelValues(result).Inc()

	s.logger.Debug("authorization response received",
		slog.String("correlation_id", resp.CorrelationID),
		slog.String("response_code", resp.ResponseCode),
		slog.Bool("waiter", matched),
	)
	return nil
}

// OnEvict reports attempts the registry gave up on.
func (s *Service) OnEvict(id string, reason correlation.EvictReason) {
	s.metrics.Evictions.WithLabelValues(string(reason)).Inc()
	s.logger.Warn("correlation entry expired",
		slog.String("correlation_id", id),
		slog.String("reason", string(reason)),
	)
}

func outcome(resp *models.AuthorizationResponse) string {
	switch {
	case resp.Approved():
		return "approved"
	case resp.ResponseCode == models.ResponseMalformed:
		return "malformed"
	default:
		return "declined"
	}
}
