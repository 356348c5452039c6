package iso8583

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alovak/cardflow-bridge/models"
)

func TestAmountLaw(t *testing.T) {
	for _, s := range []string{"0.00", "0.01", "1.00", "150.75", "1000.00", "9999999999.99", "-0.01", "-12.34", "-999999999.99"} {
		t.Run(s, func(t *testing.T) {
			a := models.MustParseAmount(s)
			enc, err := EncodeAmount(a)
			require.NoError(t, err)
			require.Len(t, enc, 12)

			got, err := DecodeAmount(enc)
			require.NoError(t, err)
			require.Equal(t, a, got)
		})
	}
}

func TestAmountNegativeDigitLoss(t *testing.T) {
	tests := []struct {
		in      string
		encoded string
		decoded string
	}{
		{"-1234567890.12", "-23456789012", "-234567890.12"},
		{"-9999999999.99", "-99999999999", "-999999999.99"},
		{"-1000000000.00", "-00000000000", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			enc, err := EncodeAmount(models.MustParseAmount(tt.in))
			require.NoError(t, err)
			require.Equal(t, tt.encoded, enc)

			got, err := DecodeAmount(enc)
			require.NoError(t, err)
			require.Equal(t, models.MustParseAmount(tt.decoded), got)
		})
	}
}

func TestEncodeAmount(t *testing.T) {
	enc, err := EncodeAmount(models.MustParseAmount("150.75"))
	require.NoError(t, err)
	require.Equal(t, "000000015075", enc)

	enc, err = EncodeAmount(models.MustParseAmount("-5.00"))
	require.NoError(t, err)
	require.Equal(t, "-00000000500", enc)

	_, err = EncodeAmount(models.MustParseAmount("10000000000.00"))
	require.ErrorIs(t, err, ErrCodec)
}

func TestDecodeAmount(t *testing.T) {
	got, err := DecodeAmount(" 0000 0001.500")
	require.NoError(t, err)
	require.Equal(t, models.Amount(1500), got)

	_, err = DecodeAmount("abc")
	require.ErrorIs(t, err, ErrCodec)

	_, err = DecodeAmount("--1")
	require.ErrorIs(t, err, ErrCodec)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(FieldAmount, "-00000000500"))
	require.NoError(t, Validate(FieldAuthorizationCode, "ab12CD"))
	require.NoError(t, Validate(FieldCVV, "1234"))

	require.ErrorIs(t, Validate(FieldAmount, "0000000005-0"), ErrCodec)
	require.ErrorIs(t, Validate(FieldSTAN, "12345"), ErrCodec)
	require.ErrorIs(t, Validate(FieldSTAN, "12345a"), ErrCodec)
	require.ErrorIs(t, Validate(FieldAuthorizationCode, "ab-2CD"), ErrCodec)
	require.ErrorIs(t, Validate(FieldCVV, ""), ErrCodec)
	require.ErrorIs(t, Validate(FieldCorrelationID, "tab\there"), ErrCodec)
	require.ErrorIs(t, Validate(99, "x"), ErrCodec)
}
