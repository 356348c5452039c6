package models

import (
	"time"

	"github.com/bytedance/sonic"
)

// Response codes carried in DE39.
const (
	ResponseApproved  = "000"
	ResponseDeclined  = "051"
	ResponseMalformed = "999"
)

// Processing codes carried in DE3.
const (
	ProcessingCashCredit        = "003000"
	ProcessingInstallmentCredit = "003001"
)

// EntryModeManual is the fixed POS entry mode sent in DE22.
const EntryModeManual = "000"

type Card struct {
	Number      string `json:"number"`
	CVV         string `json:"cvv"`
	ExpiryMonth int    `json:"expiryMonth"`
	ExpiryYear  int    `json:"expiryYear"`
	HolderName  string `json:"holderName"`
}

// AuthorizationRequest is one authorization attempt. It is immutable once
// encoded.
type AuthorizationRequest struct {
	CorrelationID string `json:"correlationId"`
	Amount        Amount `json:"amount"`
	Card          Card   `json:"card"`
	Installments  int    `json:"installments,omitempty"`

	// Filled by the codec on encode and recovered on decode.
	ProcessingCode   string    `json:"-"`
	STAN             string    `json:"-"`
	TransmissionTime time.Time `json:"-"`
	LocalTime        time.Time `json:"-"`
	EntryMode        string    `json:"-"`
}

// AuthorizationResponse is the outcome produced by the authorizer. Zero
// timestamps are left out of its JSON form.
type AuthorizationResponse struct {
	CorrelationID     string    `json:"correlationId"`
	PaymentID         string    `json:"paymentId,omitempty"`
	Amount            Amount    `json:"amount"`
	ResponseCode      string    `json:"responseCode"`
	AuthorizationCode string    `json:"authorizationCode,omitempty"`
	STAN              string    `json:"stan,omitempty"`
	TransmissionTime  time.Time `json:"transmissionTime,omitempty"`
	LocalTime         time.Time `json:"localTime,omitempty"`
}

func (r AuthorizationResponse) MarshalJSON() ([]byte, error) {
	type plain AuthorizationResponse
	out := struct {
		plain
		TransmissionTime *time.Time `json:"transmissionTime,omitempty"`
		LocalTime        *time.Time `json:"localTime,omitempty"`
	}{plain: plain(r)}
	if !r.TransmissionTime.IsZero() {
		out.TransmissionTime = &r.TransmissionTime
	}
	if !r.LocalTime.IsZero() {
		out.LocalTime = &r.LocalTime
	}
	return sonic.ConfigStd.Marshal(out)
}

// Approved reports whether the issuer approved the attempt.
func (r *AuthorizationResponse) Approved() bool {
	return r.ResponseCode == ResponseApproved
}
