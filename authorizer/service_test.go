package authorizer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	moov "github.com/moov-io/iso8583"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/alovak/cardflow-bridge/internal/iso8583"
	"github.com/alovak/cardflow-bridge/internal/metrics"
	"github.com/alovak/cardflow-bridge/internal/queue"
	"github.com/alovak/cardflow-bridge/models"
)

type testEnv struct {
	svc     *Service
	codec   *iso8583.Codec
	queue   *queue.Memory
	journal *Repository
	metrics *metrics.Authorizer
}

func newTestEnv(t *testing.T, delay time.Duration) *testEnv {
	t.Helper()

	env := &testEnv{
		codec:   iso8583.NewCodec(),
		queue:   queue.NewMemory(),
		journal: NewRepository(),
		metrics: metrics.NewAuthorizer(),
	}
	t.Cleanup(func() { env.queue.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.svc = NewService(logger, env.codec, NewRules(DefaultTransactionLimit, delay), env.journal, env.queue, env.metrics)
	return env
}

func (env *testEnv) request(t *testing.T, id, amount string) []byte {
	t.Helper()

	req := &models.AuthorizationRequest{
		CorrelationID: id,
		Amount:        models.MustParseAmount(amount),
		Card: models.Card{
			Number:      "5500000000000004",
			CVV:         "999",
			ExpiryMonth: 1,
			ExpiryYear:  2031,
		},
	}
	b, err := env.codec.EncodeRequest(req)
	require.NoError(t, err)
	return b
}

func (env *testEnv) nextResponse(t *testing.T) []byte {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		b, err := env.queue.Receive(ctx, queue.ResponseChannel)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		require.NoError(t, err)
		return b
	}
}

func (env *testEnv) decodedResponse(t *testing.T) *models.AuthorizationResponse {
	t.Helper()
	resp, err := env.codec.DecodeResponse(env.nextResponse(t))
	require.NoError(t, err)
	return resp
}

func TestHandleRequestApproves(t *testing.T) {
	env := newTestEnv(t, time.Hour)

	require.NoError(t, env.svc.HandleRequest(context.Background(), env.request(t, "svc-1", "42.00")))

	resp := env.decodedResponse(t)
	require.Equal(t, "svc-1", resp.CorrelationID)
	require.Equal(t, models.ResponseApproved, resp.ResponseCode)
	require.Len(t, resp.AuthorizationCode, 6)
	require.NotEmpty(t, resp.PaymentID)
	require.Equal(t, models.MustParseAmount("42.00"), resp.Amount)
	require.NotEmpty(t, resp.STAN)
	require.False(t, resp.TransmissionTime.IsZero())

	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Decisions.WithLabelValues("000")))
}

func TestHandleRequestDeclines(t *testing.T) {
	env := newTestEnv(t, 30*time.Millisecond)

	require.NoError(t, env.svc.HandleRequest(context.Background(), env.request(t, "neg", "-5.00")))
	resp := env.decodedResponse(t)
	require.Equal(t, models.ResponseDeclined, resp.ResponseCode)
	require.Empty(t, resp.AuthorizationCode)

	start := time.Now()
	require.NoError(t, env.svc.HandleRequest(context.Background(), env.request(t, "big", "1500.00")))
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	resp = env.decodedResponse(t)
	require.Equal(t, "big", resp.CorrelationID)
	require.Equal(t, models.ResponseDeclined, resp.ResponseCode)
	require.Empty(t, resp.AuthorizationCode)
}

func TestHandleRequestMalformed(t *testing.T) {
	env := newTestEnv(t, time.Hour)

	t.Run("unrecoverable message", func(t *testing.T) {
		require.NoError(t, env.svc.HandleRequest(context.Background(), []byte("\x00\x01garbage")))

		raw := env.nextResponse(t)
		_, err := env.codec.DecodeResponse(raw)
		require.ErrorIs(t, err, iso8583.ErrMissingField, "no correlation id to send back")

		msg := moov.NewMessage(iso8583.Spec)
		require.NoError(t, msg.Unpack(raw))
		code, err := msg.GetFields()[iso8583.FieldResponseCode].String()
		require.NoError(t, err)
		require.Equal(t, models.ResponseMalformed, code)
	})

	t.Run("correlation id recovered", func(t *testing.T) {
		msg := moov.NewMessage(iso8583.Spec)
		msg.MTI(iso8583.MTIAuthorizationRequest)
		require.NoError(t, msg.Field(iso8583.FieldCorrelationID, "half-a-message"))
		b, err := msg.Pack()
		require.NoError(t, err)

		require.NoError(t, env.svc.HandleRequest(context.Background(), b))

		resp := env.decodedResponse(t)
		require.Equal(t, "half-a-message", resp.CorrelationID)
		require.Equal(t, models.ResponseMalformed, resp.ResponseCode)
		require.Empty(t, resp.AuthorizationCode)
		require.Zero(t, resp.Amount)
	})

	require.Equal(t, 2.0, testutil.ToFloat64(env.metrics.DecodeFailures))
}

func TestHandleRequestReplaysRedelivery(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	payload := env.request(t, "dup-1", "10.00")

	require.NoError(t, env.svc.HandleRequest(context.Background(), payload))
	first := env.decodedResponse(t)

	require.NoError(t, env.svc.HandleRequest(context.Background(), payload))
	second := env.decodedResponse(t)

	require.Equal(t, first.PaymentID, second.PaymentID)
	require.Equal(t, first.AuthorizationCode, second.AuthorizationCode)
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Replays))
}

func TestHandleRequestCancelledDuringDelay(t *testing.T) {
	env := newTestEnv(t, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := env.svc.HandleRequest(ctx, env.request(t, "shutdown", "2000.00"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = env.journal.Find(context.Background(), "shutdown")
	require.ErrorIs(t, err, ErrNotFound, "nothing is journaled for an unanswered request")
}

func TestMemoryRepository(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	_, err := repo.Find(ctx, "x")
	require.ErrorIs(t, err, ErrNotFound)

	resp := &models.AuthorizationResponse{CorrelationID: "x", ResponseCode: "000", PaymentID: "p"}
	require.NoError(t, repo.Save(ctx, resp))
	require.ErrorIs(t, repo.Save(ctx, resp), ErrConflict)

	// stored copies are detached from the caller's value
	resp.PaymentID = "changed"
	got, err := repo.Find(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, "p", got.PaymentID)

	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Migrate(ctx))
}

func TestHandleRequestJournalRetention(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	now := time.Date(2026, time.May, 4, 10, 0, 0, 0, time.UTC)
	env.journal.now = func() time.Time { return now }

	payload := env.request(t, "ret-1", "10.00")
	require.NoError(t, env.svc.HandleRequest(ctx, payload))
	first := env.decodedResponse(t)

	// still inside the redelivery window
	removed, err := env.journal.Sweep(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Zero(t, removed)

	require.NoError(t, env.svc.HandleRequest(ctx, payload))
	replayed := env.decodedResponse(t)
	require.Equal(t, first.PaymentID, replayed.PaymentID)
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Replays))

	removed, err = env.journal.Sweep(ctx, now.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = env.journal.Find(ctx, "ret-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryRunExpiresDecisions(t *testing.T) {
	repo := NewRepository()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, repo.Save(ctx, &models.AuthorizationResponse{CorrelationID: "old", ResponseCode: models.ResponseApproved}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		repo.Run(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), 20*time.Millisecond, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		_, err := repo.Find(ctx, "old")
		return errors.Is(err, ErrNotFound)
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
