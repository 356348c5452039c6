package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alovak/cardflow-bridge/internal/expiry"
	"github.com/alovak/cardflow-bridge/internal/pan"
	"github.com/alovak/cardflow-bridge/models"
)

// ErrInvalidInput matches any ValidationError.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError lists every rejected field of an Input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, name := range inputFieldOrder {
		if msg, ok := e.Fields[name]; ok {
			parts = append(parts, name+": "+msg)
		}
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

var inputFieldOrder = []string{"correlationId", "amount", "cardNumber", "cvv", "expMonth", "expYear", "holderName", "installments"}

// Input is the body of a submit call.
type Input struct {
	CorrelationID string      `json:"correlationId"`
	Amount        json.Number `json:"amount"`
	CardNumber    string      `json:"cardNumber"`
	CVV           string      `json:"cvv"`
	ExpiryMonth   int         `json:"expMonth"`
	ExpiryYear    int         `json:"expYear"`
	HolderName    string      `json:"holderName"`
	Installments  int         `json:"installments,omitempty"`
}

// Request validates the input and converts it to an AuthorizationRequest.
func (in Input) Request() (models.AuthorizationRequest, error) {
	errs := map[string]string{}

	if strings.TrimSpace(in.CorrelationID) == "" {
		errs["correlationId"] = "must not be blank"
	} else if len(in.CorrelationID) > 255 {
		errs["correlationId"] = "must be at most 255 characters"
	}

	amount, msg := parseInputAmount(in.Amount.String())
	if msg != "" {
		errs["amount"] = msg
	}

	number := pan.Normalize(in.CardNumber)
	if !pan.IsDigits(number) || len(number) < 16 || len(number) > 19 {
		errs["cardNumber"] = "must be 16 to 19 digits"
	}
	if !pan.IsDigits(in.CVV) || len(in.CVV) < 3 || len(in.CVV) > 4 {
		errs["cvv"] = "must be 3 or 4 digits"
	}
	if in.ExpiryMonth < 1 || in.ExpiryMonth > 12 {
		errs["expMonth"] = "must be between 1 and 12"
	}
	if _, err := expiry.NormalizeYear(in.ExpiryYear); err != nil {
		errs["expYear"] = "must be YY or 20YY"
	}
	if strings.TrimSpace(in.HolderName) == "" {
		errs["holderName"] = "must not be blank"
	} else if len(in.HolderName) > 255 {
		errs["holderName"] = "must be at most 255 characters"
	}
	if in.Installments < 0 || in.Installments > 99 {
		errs["installments"] = "must be between 0 and 99"
	}

	if len(errs) > 0 {
		return models.AuthorizationRequest{}, &ValidationError{Fields: errs}
	}

	year, _ := expiry.NormalizeYear(in.ExpiryYear)
	return models.AuthorizationRequest{
		CorrelationID: in.CorrelationID,
		Amount:        amount,
		Card: models.Card{
			Number:      number,
			CVV:         in.CVV,
			ExpiryMonth: in.ExpiryMonth,
			ExpiryYear:  year,
			HolderName:  in.HolderName,
		},
		Installments: in.Installments,
	}, nil
}

// parseInputAmount allows at most 10 integer and 2 fraction digits.
func parseInputAmount(s string) (models.Amount, string) {
	if s == "" {
		return 0, "is required"
	}
	digits := strings.TrimPrefix(s, "-")
	intPart, fracPart, _ := strings.Cut(digits, ".")
	if len(strings.TrimLeft(intPart, "0")) > 10 || len(fracPart) > 2 {
		return 0, "must have at most 10 integer and 2 fraction digits"
	}
	a, err := models.ParseAmount(s)
	if err != nil {
		return 0, fmt.Sprintf("%q is not a decimal amount", s)
	}
	return a, ""
}
