package authorizer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alovak/cardflow-bridge/models"
)

// Outcome is the branch the rule engine took.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeDeclined Outcome = "declined"
	// OutcomeTimedOut models an issuer that answered too late: the response
	// is a decline sent after an artificial delay.
	OutcomeTimedOut Outcome = "timed_out"
)

var DefaultTransactionLimit = models.MustParseAmount("1000.00")

const DefaultTimeoutDelay = 5 * time.Second

// Rules decides authorization requests from their amount alone.
type Rules struct {
	Limit        models.Amount
	TimeoutDelay time.Duration

	newID func() string
}

func NewRules(limit models.Amount, delay time.Duration) *Rules {
	return &Rules{
		Limit:        limit,
		TimeoutDelay: delay,
		newID:        uuid.NewString,
	}
}

// Evaluate returns the outcome and response for req. The over-limit branch
// sleeps for TimeoutDelay first; it returns ctx.Err() if ctx ends during the
// delay.
func (r *Rules) Evaluate(ctx context.Context, req *models.AuthorizationRequest) (Outcome, *models.AuthorizationResponse, error) {
	resp := &models.AuthorizationResponse{
		CorrelationID:    req.CorrelationID,
		Amount:           req.Amount,
		STAN:             req.STAN,
		TransmissionTime: req.TransmissionTime,
		LocalTime:        req.LocalTime,
	}

	switch {
	case req.Amount <= 0:
		resp.ResponseCode = models.ResponseDeclined
		return OutcomeDeclined, resp, nil

	case req.Amount <= r.Limit:
		resp.ResponseCode = models.ResponseApproved
		resp.AuthorizationCode = r.authorizationCode()
		resp.PaymentID = r.newID()
		return OutcomeApproved, resp, nil

	default:
		timer := time.NewTimer(r.TimeoutDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return OutcomeTimedOut, nil, ctx.Err()
		case <-timer.C:
		}
		resp.ResponseCode = models.ResponseDeclined
		return OutcomeTimedOut, resp, nil
	}
}

// authorizationCode is six upper-case alphanumerics.
func (r *Rules) authorizationCode() string {
	id := strings.ReplaceAll(r.newID(), "-", "")
	return strings.ToUpper(id[:6])
}

// MalformedResponse answers a request that could not be decoded. It carries
// the correlation id only when one was recovered.
func MalformedResponse(correlationID string) *models.AuthorizationResponse {
	return &models.AuthorizationResponse{
		CorrelationID: correlationID,
		ResponseCode:  models.ResponseMalformed,
	}
}
