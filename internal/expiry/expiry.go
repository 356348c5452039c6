package expiry

import (
	"fmt"
	"strconv"
)

// NormalizeYear turns a 2-digit card year into a full year. 4-digit years are
// returned unchanged.
func NormalizeYear(year int) (int, error) {
	switch {
	case year >= 0 && year <= 99:
		return 2000 + year, nil
	case year >= 2000 && year <= 2099:
		return year, nil
	default:
		return 0, fmt.Errorf("expiry year %d must be YY or 20YY", year)
	}
}

// YYMM returns the DE14 expiration date for the given year and month.
func YYMM(year, month int) (string, error) {
	y, err := NormalizeYear(year)
	if err != nil {
		return "", err
	}
	if month < 1 || month > 12 {
		return "", fmt.Errorf("expiry month must be 01..12 (got %d)", month)
	}
	return fmt.Sprintf("%02d%02d", y%100, month), nil
}

// ParseYYMM splits a DE14 value into a full year and a month.
func ParseYYMM(yymm string) (year, month int, err error) {
	if err := ValidateYYMM(yymm); err != nil {
		return 0, 0, err
	}
	yy, _ := strconv.Atoi(yymm[:2])
	mm, _ := strconv.Atoi(yymm[2:])
	return 2000 + yy, mm, nil
}

// ValidateYYMM checks the value is 4 digits with a month in 01..12.
func ValidateYYMM(yymm string) error {
	if len(yymm) != 4 {
		return fmt.Errorf("expiry must be YYMM (4 digits)")
	}
	for i := 0; i < 4; i++ {
		if yymm[i] < '0' || yymm[i] > '9' {
			return fmt.Errorf("expiry must be digits: YYMM")
		}
	}
	mm := int(yymm[2]-'0')*10 + int(yymm[3]-'0')
	if mm < 1 || mm > 12 {
		return fmt.Errorf("expiry month must be 01..12")
	}
	return nil
}
