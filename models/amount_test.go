package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want Amount
	}{
		{"0", 0},
		{"1000.00", 100000},
		{"12.5", 1250},
		{"-12.34", -1234},
		{".99", 99},
		{"1.999", 199},
		{"+7", 700},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "-", "abc", "1.2.3", "1e5", "12345678901234567890"} {
		_, err := ParseAmount(bad)
		require.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestAmountString(t *testing.T) {
	require.Equal(t, "0.00", Amount(0).String())
	require.Equal(t, "0.05", Amount(5).String())
	require.Equal(t, "-0.05", Amount(-5).String())
	require.Equal(t, "1000.00", Amount(100000).String())
}

func TestAmountJSON(t *testing.T) {
	var req AuthorizationRequest
	err := json.Unmarshal([]byte(`{"correlationId":"c1","amount":10.5}`), &req)
	require.NoError(t, err)
	require.Equal(t, Amount(1050), req.Amount)

	err = json.Unmarshal([]byte(`{"amount":"-3.10"}`), &req)
	require.NoError(t, err)
	require.Equal(t, Amount(-310), req.Amount)

	b, err := json.Marshal(AuthorizationResponse{Amount: 1050, ResponseCode: "000"})
	require.NoError(t, err)
	require.Contains(t, string(b), `"amount":10.50`)
}
