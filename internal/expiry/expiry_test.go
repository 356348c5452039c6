package expiry

import (
	"testing"
)

func TestYYMM(t *testing.T) {
	cases := []struct {
		year, month int
		want        string
	}{
		{30, 12, "3012"},
		{2031, 2, "3102"},
		{0, 1, "0001"},
		{2099, 9, "9909"},
	}
	for _, c := range cases {
		got, err := YYMM(c.year, c.month)
		if err != nil {
			t.Fatalf("YYMM(%d, %d) err: %v", c.year, c.month, err)
		}
		if got != c.want {
			t.Fatalf("YYMM(%d, %d) got %s want %s", c.year, c.month, got, c.want)
		}
	}
}

func TestYYMM_Invalid(t *testing.T) {
	if _, err := YYMM(30, 0); err == nil {
		t.Fatalf("expected error for month 0")
	}
	if _, err := YYMM(30, 13); err == nil {
		t.Fatalf("expected error for month 13")
	}
	if _, err := YYMM(1999, 1); err == nil {
		t.Fatalf("expected error for year 1999")
	}
	if _, err := YYMM(-1, 1); err == nil {
		t.Fatalf("expected error for negative year")
	}
}

func TestParseYYMM(t *testing.T) {
	y, m, err := ParseYYMM("2807")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if y != 2028 || m != 7 {
		t.Fatalf("got %d/%d want 2028/7", y, m)
	}

	for _, bad := range []string{"", "281", "28a7", "2800", "2813", "12345"} {
		if _, _, err := ParseYYMM(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
