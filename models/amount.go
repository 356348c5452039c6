package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned when a decimal string cannot be read as an amount.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount is a signed monetary value in minor units (1/100 of the major unit).
type Amount int64

// ParseAmount reads a decimal such as "-12.5" or "1000.00". Fraction digits
// beyond the second are truncated.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value: %w", ErrInvalidAmount)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidAmount)
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || !isDigits(fracPart) {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidAmount)
	}
	// 17 integer digits is still well inside int64 once scaled by 100
	if len(strings.TrimLeft(intPart, "0")) > 16 {
		return 0, fmt.Errorf("%q out of range: %w", s, ErrInvalidAmount)
	}

	for len(fracPart) < 2 {
		fracPart += "0"
	}
	fracPart = fracPart[:2]

	units, err := strconv.ParseInt(intPart+fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", s, ErrInvalidAmount)
	}
	if neg {
		units = -units
	}
	return Amount(units), nil
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON writes the amount as a JSON number with two fraction digits.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimals.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		return nil
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
