package config

import (
	"os"
	"strings"
)

// DispatchOutboxEnabled controls the background dispatcher that publishes
// warehouse-dispatch events for executed allocations.
//
// Set via env:
// - DISPATCH_OUTBOX_ENABLED=true
func DispatchOutboxEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DISPATCH_OUTBOX_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// DemoSeedAllowed guards the seed-demo CLI so it cannot run against a
// production database by accident.
//
// Set via env:
// - ALLOW_DEMO_SEED=true
func DemoSeedAllowed() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ALLOW_DEMO_SEED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
