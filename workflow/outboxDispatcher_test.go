package workflow

import (
	"testing"
	"time"
)

func TestNextBackoff_DoublesPerAttempt(t *testing.T) {
	initial := 5 * time.Second
	cases := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
	}
	for _, tc := range cases {
		if got := nextBackoff(initial, tc.attempt); got != tc.expected {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.expected, got)
		}
	}
}

func TestNextBackoff_CapsAtTenMinutes(t *testing.T) {
	for _, attempt := range []int{9, 15, 100} {
		if got := nextBackoff(5*time.Second, attempt); got != 10*time.Minute {
			t.Fatalf("attempt %d: expected 10m cap, got %s", attempt, got)
		}
	}
}
