// Package iso8583 maps authorization requests and responses to the
// fixed-format wire messages exchanged between the gateway and the
// authorizer.
package iso8583

import (
	"fmt"
	"strconv"
	"time"

	"github.com/moov-io/iso8583"

	"github.com/alovak/cardflow-bridge/internal/expiry"
	"github.com/alovak/cardflow-bridge/internal/pan"
	"github.com/alovak/cardflow-bridge/models"
)

var (
	requestRequired  = []int{FieldPAN, FieldProcessingCode, FieldAmount, FieldTransmissionTime, FieldSTAN, FieldLocalTime, FieldLocalDate, FieldExpirationDate, FieldEntryMode, FieldCorrelationID}
	responseRequired = []int{FieldResponseCode, FieldCorrelationID}
)

// Codec encodes and decodes authorization messages. The zero value is not
// usable; call NewCodec.
type Codec struct {
	now  func() time.Time
	loc  *time.Location
	stan *Sequence
}

type Option func(*Codec)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithLocation sets the zone of the local transaction date and time (DE12,
// DE13). Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *Codec) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithSequence(seq *Sequence) Option {
	return func(c *Codec) { c.stan = seq }
}

func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		now: time.Now,
		loc: time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.stan == nil {
		c.stan = NewSequence(uint32(c.now().UnixNano() % maxSTAN))
	}
	return c
}

// ProcessingCode selects DE3 from the installment count.
func ProcessingCode(installments int) string {
	if installments > 1 {
		return models.ProcessingInstallmentCredit
	}
	return models.ProcessingCashCredit
}

// EncodeRequest packs req as a 0200 message. Fields the caller left empty
// (processing code, trace number, timestamps, entry mode) are generated and
// written back to req.
func (c *Codec) EncodeRequest(req *models.AuthorizationRequest) ([]byte, error) {
	if req.CorrelationID == "" {
		return nil, &MissingFieldError{Field: FieldCorrelationID}
	}

	yymm, err := expiry.YYMM(req.Card.ExpiryYear, req.Card.ExpiryMonth)
	if err != nil {
		return nil, &CodecError{Field: FieldExpirationDate, Err: err}
	}
	if req.Installments < 0 || req.Installments > 99 {
		return nil, codecErr(FieldInstallments, "installments %d out of range 0..99", req.Installments)
	}
	amount, err := EncodeAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	if req.ProcessingCode == "" {
		req.ProcessingCode = ProcessingCode(req.Installments)
	}
	if req.EntryMode == "" {
		req.EntryMode = models.EntryModeManual
	}
	if req.TransmissionTime.IsZero() {
		req.TransmissionTime = c.now().Truncate(time.Second)
	}
	if req.LocalTime.IsZero() {
		req.LocalTime = req.TransmissionTime
	}
	if req.STAN == "" {
		req.STAN = c.stan.Next()
	}

	local := req.LocalTime.In(c.loc)
	values := map[int]string{
		FieldPAN:              pan.Normalize(req.Card.Number),
		FieldProcessingCode:   req.ProcessingCode,
		FieldAmount:           amount,
		FieldTransmissionTime: req.TransmissionTime.UTC().Format("0102150405"),
		FieldSTAN:             req.STAN,
		FieldLocalTime:        local.Format("150405"),
		FieldLocalDate:        local.Format("0102"),
		FieldExpirationDate:   yymm,
		FieldEntryMode:        req.EntryMode,
		FieldCorrelationID:    req.CorrelationID,
		FieldInstallments:     fmt.Sprintf("%02d", req.Installments),
	}
	if req.Card.CVV != "" {
		values[FieldCVV] = req.Card.CVV
	}

	return pack(MTIAuthorizationRequest, values)
}

// DecodeRequest unpacks a 0200 message. When the message unpacks but fails
// validation, the returned request is non-nil and carries whatever
// correlation id could be read, so the caller can still answer it.
func (c *Codec) DecodeRequest(b []byte) (*models.AuthorizationRequest, error) {
	values, err := unpack(b, MTIAuthorizationRequest)
	if err != nil {
		return nil, err
	}

	req := &models.AuthorizationRequest{}
	if id, ok := values[FieldCorrelationID]; ok && Validate(FieldCorrelationID, id) == nil {
		req.CorrelationID = id
	}

	if err := checkFields(values, requestRequired); err != nil {
		return req, err
	}

	req.Card.Number = values[FieldPAN]
	req.Card.CVV = values[FieldCVV]
	req.ProcessingCode = values[FieldProcessingCode]
	req.STAN = values[FieldSTAN]
	req.EntryMode = values[FieldEntryMode]

	if req.Amount, err = DecodeAmount(values[FieldAmount]); err != nil {
		return req, err
	}

	year, month, err := expiry.ParseYYMM(values[FieldExpirationDate])
	if err != nil {
		return req, &CodecError{Field: FieldExpirationDate, Err: err}
	}
	req.Card.ExpiryYear, req.Card.ExpiryMonth = year, month

	if v, ok := values[FieldInstallments]; ok {
		n, _ := strconv.Atoi(v)
		req.Installments = n
	}

	if req.TransmissionTime, err = c.transmissionTime(values[FieldTransmissionTime]); err != nil {
		return req, err
	}
	if req.LocalTime, err = c.localTime(values[FieldLocalDate], values[FieldLocalTime]); err != nil {
		return req, err
	}

	return req, nil
}

// EncodeResponse packs resp as a 0210 message. A response without a
// correlation id is sent without DE47.
func (c *Codec) EncodeResponse(resp *models.AuthorizationResponse) ([]byte, error) {
	if resp.ResponseCode == "" {
		return nil, &MissingFieldError{Field: FieldResponseCode}
	}
	amount, err := EncodeAmount(resp.Amount)
	if err != nil {
		return nil, err
	}

	values := map[int]string{
		FieldAmount:       amount,
		FieldResponseCode: resp.ResponseCode,
	}
	if resp.CorrelationID != "" {
		values[FieldCorrelationID] = resp.CorrelationID
	}
	if resp.AuthorizationCode != "" {
		values[FieldAuthorizationCode] = resp.AuthorizationCode
	}
	if resp.PaymentID != "" {
		values[FieldPaymentID] = resp.PaymentID
	}
	if resp.STAN != "" {
		values[FieldSTAN] = resp.STAN
	}
	if !resp.TransmissionTime.IsZero() {
		values[FieldTransmissionTime] = resp.TransmissionTime.UTC().Format("0102150405")
	}
	if !resp.LocalTime.IsZero() {
		local := resp.LocalTime.In(c.loc)
		values[FieldLocalTime] = local.Format("150405")
		values[FieldLocalDate] = local.Format("0102")
	}

	return pack(MTIAuthorizationResponse, values)
}

// DecodeResponse unpacks a 0210 message.
func (c *Codec) DecodeResponse(b []byte) (*models.AuthorizationResponse, error) {
	values, err := unpack(b, MTIAuthorizationResponse)
	if err != nil {
		return nil, err
	}
	if err := checkFields(values, responseRequired); err != nil {
		return nil, err
	}

	resp := &models.AuthorizationResponse{
		CorrelationID:     values[FieldCorrelationID],
		ResponseCode:      values[FieldResponseCode],
		AuthorizationCode: values[FieldAuthorizationCode],
		PaymentID:         values[FieldPaymentID],
		STAN:              values[FieldSTAN],
	}

	if v, ok := values[FieldAmount]; ok {
		if resp.Amount, err = DecodeAmount(v); err != nil {
			return nil, err
		}
	}
	if v, ok := values[FieldTransmissionTime]; ok {
		if resp.TransmissionTime, err = c.transmissionTime(v); err != nil {
			return nil, err
		}
	}
	date, hasDate := values[FieldLocalDate]
	clock, hasClock := values[FieldLocalTime]
	if hasDate && hasClock {
		if resp.LocalTime, err = c.localTime(date, clock); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// checkFields validates every present field and the presence of required ones.
func checkFields(values map[int]string, required []int) error {
	for _, id := range required {
		if _, ok := values[id]; !ok {
			return &MissingFieldError{Field: id}
		}
	}
	for id, v := range values {
		if err := Validate(id, v); err != nil {
			return err
		}
	}
	return nil
}

// transmissionTime parses DE7 (MMDDhhmmss, UTC).
func (c *Codec) transmissionTime(v string) (time.Time, error) {
	if len(v) != 10 {
		return time.Time{}, codecErr(FieldTransmissionTime, "malformed value %q", v)
	}
	t, err := c.withYear(v[:4], v[4:], time.UTC)
	if err != nil {
		return time.Time{}, &CodecError{Field: FieldTransmissionTime, Err: err}
	}
	return t, nil
}

// localTime combines DE13 (MMDD) and DE12 (hhmmss).
func (c *Codec) localTime(date, clock string) (time.Time, error) {
	if len(date) != 4 || len(clock) != 6 {
		return time.Time{}, codecErr(FieldLocalDate, "malformed date %q or time %q", date, clock)
	}
	t, err := c.withYear(date, clock, c.loc)
	if err != nil {
		return time.Time{}, &CodecError{Field: FieldLocalDate, Err: err}
	}
	return t, nil
}

// withYear rebuilds a timestamp that carries no year on the wire. Of the
// previous, current and next year it picks the one closest to the clock.
func (c *Codec) withYear(mmdd, hhmmss string, loc *time.Location) (time.Time, error) {
	month, _ := strconv.Atoi(mmdd[:2])
	day, _ := strconv.Atoi(mmdd[2:])
	hh, _ := strconv.Atoi(hhmmss[:2])
	mm, _ := strconv.Atoi(hhmmss[2:4])
	ss, _ := strconv.Atoi(hhmmss[4:])
	if month < 1 || month > 12 || day < 1 || day > 31 || hh > 23 || mm > 59 || ss > 59 {
		return time.Time{}, fmt.Errorf("invalid date %s %s", mmdd, hhmmss)
	}

	now := c.now().In(loc)
	var best time.Time
	var bestDist time.Duration
	for _, y := range []int{now.Year() - 1, now.Year(), now.Year() + 1} {
		t := time.Date(y, time.Month(month), day, hh, mm, ss, 0, loc)
		// time.Date normalizes dates such as Feb 29 on non-leap years
		if t.Month() != time.Month(month) || t.Day() != day {
			continue
		}
		dist := t.Sub(now)
		if dist < 0 {
			dist = -dist
		}
		if best.IsZero() || dist < bestDist {
			best, bestDist = t, dist
		}
	}
	if best.IsZero() {
		return time.Time{}, fmt.Errorf("invalid date %s %s", mmdd, hhmmss)
	}
	return best, nil
}

func pack(mti string, values map[int]string) ([]byte, error) {
	msg := iso8583.NewMessage(Spec)
	msg.MTI(mti)

	for id, v := range values {
		if err := Validate(id, v); err != nil {
			return nil, err
		}
		if err := msg.Field(id, v); err != nil {
			return nil, &CodecError{Field: id, Err: err}
		}
	}

	b, err := msg.Pack()
	if err != nil {
		return nil, &CodecError{Field: -1, Err: fmt.Errorf("packing %s message: %w", mti, err)}
	}
	return b, nil
}

// unpack returns the string value of every data element present in b after
// checking the message type.
func unpack(b []byte, wantMTI string) (map[int]string, error) {
	if len(b) == 0 {
		return nil, &CodecError{Field: -1, Err: fmt.Errorf("empty message")}
	}

	msg := iso8583.NewMessage(Spec)
	if err := msg.Unpack(b); err != nil {
		return nil, &CodecError{Field: -1, Err: fmt.Errorf("unpacking message: %w", err)}
	}

	mti, err := msg.GetMTI()
	if err != nil {
		return nil, &CodecError{Field: 0, Err: err}
	}
	if mti != wantMTI {
		return nil, &ProtocolMismatchError{Expected: wantMTI, Got: mti}
	}

	values := make(map[int]string)
	for id, f := range msg.GetFields() {
		if id == 0 || id == 1 {
			continue
		}
		s, err := f.String()
		if err != nil {
			return nil, &CodecError{Field: id, Err: err}
		}
		values[id] = s
	}
	return values, nil
}
