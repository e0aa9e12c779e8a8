package httpapi

import "testing"

func TestParsePositiveInt(t *testing.T) {
	cases := []struct {
		raw      string
		fallback int
		want     int
	}{
		{"", 20, 20},
		{"not-a-number", 20, 20},
		{"0", 20, 20},
		{"-5", 20, 20},
		{"50", 20, 50},
	}
	for _, tc := range cases {
		if got := parsePositiveInt(tc.raw, tc.fallback); got != tc.want {
			t.Errorf("parsePositiveInt(%q, %d) = %d, want %d", tc.raw, tc.fallback, got, tc.want)
		}
	}
}
