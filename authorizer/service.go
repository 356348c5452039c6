package authorizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"github.com/alovak/cardflow-bridge/internal/iso8583"
	"github.com/alovak/cardflow-bridge/internal/metrics"
	"github.com/alovak/cardflow-bridge/internal/pan"
	"github.com/alovak/cardflow-bridge/internal/queue"
	"github.com/alovak/cardflow-bridge/models"
)

// Service consumes authorization requests, decides them and publishes the
// responses.
type Service struct {
	codec     *iso8583.Codec
	rules     *Rules
	journal   *Repository
	publisher queue.Publisher
	metrics   *metrics.Authorizer
	logger    *slog.Logger
}

func NewService(logger *slog.Logger, codec *iso8583.Codec, rules *Rules, journal *Repository, publisher queue.Publisher, m *metrics.Authorizer) *Service {
	return &Service{
		codec:     codec,
		rules:     rules,
		journal:   journal,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// HandleRequest processes one message from the request channel. A message
// that cannot be decoded is answered with a 999 decline; only transport and
// journal failures are returned.
func (s *Service) HandleRequest(ctx context.Context, payload []byte) error {
	start := time.Now()
	defer func() {
		s.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := s.codec.DecodeRequest(payload)
	if err != nil {
		s.metrics.DecodeFailures.Inc()
		id := ""
		if req != nil {
			id = req.CorrelationID
		}
		s.logger.Warn("malformed authorization request",
			slog.String("correlation_id", id),
			slog.Any("err", err),
		)
		return s.publish(ctx, MalformedResponse(id))
	}

	logger := s.logger.With(
		slog.String("correlation_id", req.CorrelationID),
		slog.String("stan", req.STAN),
	)

	prior, err := s.journal.Find(ctx, req.CorrelationID)
	switch {
	case err == nil:
		logger.Info("redelivered request, replaying decision", slog.String("response_code", prior.ResponseCode))
		s.metrics.Replays.Inc()
		return s.publish(ctx, prior)
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("looking up decision: %w", err)
	}

	outcome, resp, err := s.rules.Evaluate(ctx, req)
	if err != nil {
		return fmt.Errorf("evaluating %s: %w", req.CorrelationID, err)
	}

	if err := s.journal.Save(ctx, resp); err != nil {
		if !errors.Is(err, ErrConflict) {
			return fmt.Errorf("journaling decision: %w", err)
		}
		// a concurrent delivery of the same request won the race
		if resp, err = s.journal.Find(ctx, req.CorrelationID); err != nil {
			return fmt.Errorf("loading concurrent decision: %w", err)
		}
		s.metrics.Replays.Inc()
	}

	logger.Info("authorization decided",
		slog.String("outcome", string(outcome)),
		slog.String("response_code", resp.ResponseCode),
		slog.String("pan", pan.Mask(req.Card.Number)),
		slog.String("amount", req.Amount.String()),
	)

	return s.publish(ctx, resp)
}

func (s *Service) publish(ctx context.Context, resp *models.AuthorizationResponse) error {
	b, err := s.codec.EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	if err := s.publisher.Publish(ctx, queue.ResponseChannel, b); err != nil {
		return fmt.Errorf("publishing response: %w", err)
	}
	s.metrics.Decisions.WithLabelValues(resp.ResponseCode).Inc()
	return nil
}
