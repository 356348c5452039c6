package iso8583

import (
	"math"
	"strconv"
	"strings"

	"github.com/alovak/cardflow-bridge/models"
)

const maxAmountUnits = 1_000_000_000_000

// EncodeAmount renders DE4: twelve zero-padded digits of minor units. A
// negative amount has its first character replaced by '-', which drops the
// leading digit of the magnitude. Counterparties depend on that layout.
func EncodeAmount(a models.Amount) (string, error) {
	v := int64(a)
	if v == math.MinInt64 {
		return "", codecErr(FieldAmount, "amount %s does not fit", a)
	}
	neg := v < 0
	if neg {
		v = -v
	}
	if v >= maxAmountUnits {
		return "", codecErr(FieldAmount, "amount %s exceeds 10 integer digits", a)
	}

	s := strconv.FormatInt(v, 10)
	s = strings.Repeat("0", 12-len(s)) + s
	if neg {
		s = "-" + s[1:]
	}
	return s, nil
}

// DecodeAmount reverses EncodeAmount. Anything other than digits and '-' is
// ignored.
func DecodeAmount(s string) (models.Amount, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, s)

	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, codecErr(FieldAmount, "parsing amount %q: %w", s, err)
	}
	return models.Amount(v), nil
}
