package models

import (
	"regexp"
	"testing"
)

func TestGenerateAllocationCode_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^ALLOC_\d{8}_[0-9A-F]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code := GenerateAllocationCode()
		if !pattern.MatchString(code) {
			t.Fatalf("unexpected code format: %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected distinct codes across calls")
	}
}
