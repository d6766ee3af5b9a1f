package apiclient

import (
	"testing"
	"time"
)

func TestParseServerTiming(t *testing.T) {
	cases := []struct {
		header string
		want   time.Duration
		ok     bool
	}{
		{"", 0, false},
		{"cache;desc=hit", 0, false},
		{"convert;dur=840", 840 * time.Millisecond, true},
		{"upload;dur=12.5, convert;dur=87.5", 100 * time.Millisecond, true},
		{`total;desc="all";dur="250"`, 250 * time.Millisecond, true},
		{"convert;dur=abc, save;dur=10", 10 * time.Millisecond, true},
	}

	for _, tc := range cases {
		got, ok := ParseServerTiming(tc.header)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseServerTiming(%q) = %v, %v; want %v, %v", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}
