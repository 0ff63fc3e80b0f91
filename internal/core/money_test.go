package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", -100, true},
		{"-7,5", -750, true},
		{"0", 0, true},
		{"1.234,56", 123456, true},
		{"1,234.56", 123456, true},
		{"1'234.50", 123450, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1,2,3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyConversions(t *testing.T) {
	if got := MoneyFromFloat(12.345); got.Cents != 1235 {
		t.Fatalf("MoneyFromFloat(12.345) = %d, want 1235", got.Cents)
	}
	if got := MoneyFromFloat(-3.2); got.Cents != -320 {
		t.Fatalf("MoneyFromFloat(-3.2) = %d, want -320", got.Cents)
	}
	m := Money{Cents: 4599}
	if m.Float() != 45.99 {
		t.Fatalf("Float() = %v, want 45.99", m.Float())
	}
	if m.String() != "45.99" {
		t.Fatalf("String() = %q, want 45.99", m.String())
	}
}
