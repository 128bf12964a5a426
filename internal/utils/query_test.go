package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		// empty -> default
		{"", 10, 10},
		// valid ints
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestParseLimit(t *testing.T) {
	cases := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{"", 10, true},
		{"5", 5, true},
		{"1000", 100, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"ten", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseLimit(tc.raw, 10, 100)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("ParseLimit(%q) = %d,%v; want %d,%v", tc.raw, got, ok, tc.want, tc.wantOK)
		}
	}
}
