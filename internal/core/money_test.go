package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.0", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half away from zero
		{" 2.50 ", "2.50", true},
		{"250.75", "250.75", true},
		{"0.004", "", false}, // rounds to zero
		{"-1", "", false},
		{"0", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || FormatAmount(got) != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, FormatAmount(got), err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestCentsRoundTrip(t *testing.T) {
	d := decimal.RequireFromString("42.01")
	if got := ToCents(d); got != 4201 {
		t.Fatalf("ToCents = %d, want 4201", got)
	}
	if got := FromCents(25075); !got.Equal(decimal.RequireFromString("250.75")) {
		t.Fatalf("FromCents = %s, want 250.75", got)
	}
	if got := ToCents(decimal.RequireFromString("0.125")); got != 13 {
		t.Fatalf("ToCents rounds half away from zero, got %d", got)
	}
}
