package iso8583

import (
	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/encoding"
	"github.com/moov-io/iso8583/field"
	"github.com/moov-io/iso8583/prefix"
)

// Message type indicators.
const (
	MTIAuthorizationRequest  = "0200"
	MTIAuthorizationResponse = "0210"
)

// Data elements used by the authorization messages.
const (
	FieldPAN               = 2
	FieldProcessingCode    = 3
	FieldAmount            = 4
	FieldTransmissionTime  = 7
	FieldSTAN              = 11
	FieldLocalTime         = 12
	FieldLocalDate         = 13
	FieldExpirationDate    = 14
	FieldEntryMode         = 22
	FieldAuthorizationCode = 38
	FieldResponseCode      = 39
	FieldCorrelationID     = 47
	FieldCVV               = 48
	FieldInstallments      = 67
	FieldPaymentID         = 127
)

// Kind is the format class of a field.
type Kind int

const (
	// FixedNumeric is a fixed-width run of digits.
	FixedNumeric Kind = iota
	// FixedSigned is a fixed-width run of digits whose first character may be '-'.
	FixedSigned
	// FixedAlphanumeric is a fixed-width run of letters, digits or spaces.
	FixedAlphanumeric
	// LLNumeric is up to Width digits behind a 2-digit length prefix.
	LLNumeric
	// LLLText is up to Width printable characters behind a 3-digit length prefix.
	LLLText
)

type FieldDef struct {
	Name  string
	Kind  Kind
	Width int
}

// Dictionary maps every data element this system exchanges to its format.
var Dictionary = map[int]FieldDef{
	FieldPAN:               {"Primary Account Number", LLNumeric, 19},
	FieldProcessingCode:    {"Processing Code", FixedNumeric, 6},
	FieldAmount:            {"Transaction Amount", FixedSigned, 12},
	FieldTransmissionTime:  {"Transmission Date & Time", FixedNumeric, 10},
	FieldSTAN:              {"System Trace Audit Number", FixedNumeric, 6},
	FieldLocalTime:         {"Local Transaction Time", FixedNumeric, 6},
	FieldLocalDate:         {"Local Transaction Date", FixedNumeric, 4},
	FieldExpirationDate:    {"Expiration Date", FixedNumeric, 4},
	FieldEntryMode:         {"POS Entry Mode", FixedNumeric, 3},
	FieldAuthorizationCode: {"Authorization Identification Response", FixedAlphanumeric, 6},
	FieldResponseCode:      {"Response Code", FixedAlphanumeric, 3},
	FieldCorrelationID:     {"Correlation Id", LLLText, 255},
	FieldCVV:               {"Card Verification Value", LLNumeric, 4},
	FieldInstallments:      {"Installments", FixedNumeric, 2},
	FieldPaymentID:         {"Payment Id", LLLText, 64},
}

// Validate checks value against the definition of field id.
func Validate(id int, value string) error {
	def, ok := Dictionary[id]
	if !ok {
		return codecErr(id, "field is not defined")
	}

	switch def.Kind {
	case FixedNumeric, FixedSigned, FixedAlphanumeric:
		if len(value) != def.Width {
			return codecErr(id, "length %d, want %d", len(value), def.Width)
		}
	case LLNumeric, LLLText:
		if len(value) == 0 || len(value) > def.Width {
			return codecErr(id, "length %d, want 1..%d", len(value), def.Width)
		}
	}

	for i := 0; i < len(value); i++ {
		c := value[i]
		var ok bool
		switch def.Kind {
		case FixedNumeric, LLNumeric:
			ok = isDigit(c)
		case FixedSigned:
			ok = isDigit(c) || (i == 0 && c == '-')
		case FixedAlphanumeric:
			ok = isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == ' '
		case LLLText:
			ok = c >= 0x20 && c <= 0x7e
		}
		if !ok {
			return codecErr(id, "invalid character %q at position %d", c, i)
		}
	}
	return nil
}

// Spec is the moov message spec built from Dictionary. ASCII throughout with a
// hex-encoded bitmap; the secondary bitmap appears when field 127 is set.
var Spec = buildSpec()

func buildSpec() *iso8583.MessageSpec {
	fields := map[int]field.Field{
		0: field.NewString(&field.Spec{
			Length:      4,
			Description: "Message Type Indicator",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		1: field.NewBitmap(&field.Spec{
			Length:      8,
			Description: "Bitmap",
			Enc:         encoding.BytesToASCIIHex,
			Pref:        prefix.Hex.Fixed,
		}),
	}

	for id, def := range Dictionary {
		spec := &field.Spec{
			Length:      def.Width,
			Description: def.Name,
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}
		switch def.Kind {
		case LLNumeric:
			spec.Pref = prefix.ASCII.LL
		case LLLText:
			spec.Pref = prefix.ASCII.LLL
		}
		fields[id] = field.NewString(spec)
	}

	return &iso8583.MessageSpec{
		Name:   "Card Authorization",
		Fields: fields,
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
