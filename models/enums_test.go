package models

import (
	"encoding/json"
	"testing"
)

func TestAllocationStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from    AllocationStatus
		to      AllocationStatus
		allowed bool
	}{
		{AllocationStatusInProgress, AllocationStatusDraft, true},
		{AllocationStatusInProgress, AllocationStatusCancelled, true},
		{AllocationStatusInProgress, AllocationStatusApproved, false},
		{AllocationStatusDraft, AllocationStatusApproved, true},
		{AllocationStatusDraft, AllocationStatusCancelled, true},
		{AllocationStatusDraft, AllocationStatusExecuted, false},
		{AllocationStatusApproved, AllocationStatusExecuted, true},
		{AllocationStatusApproved, AllocationStatusCancelled, true},
		{AllocationStatusApproved, AllocationStatusDraft, false},
		{AllocationStatusExecuted, AllocationStatusCancelled, false},
		{AllocationStatusExecuted, AllocationStatusDraft, false},
		{AllocationStatusCancelled, AllocationStatusDraft, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected %t, got %t", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestAllocationBasis_IsRunnable(t *testing.T) {
	runnable := []AllocationBasis{AllocationBasisRatio, AllocationBasisSales, AllocationBasisStock}
	for _, b := range runnable {
		if !b.IsRunnable() {
			t.Fatalf("expected %s to be runnable", b)
		}
	}
	if AllocationBasisSalesFallback.IsRunnable() {
		t.Fatalf("SALES_FALLBACK is engine-assigned and must not be runnable")
	}
	if AllocationBasisManual.IsRunnable() {
		t.Fatalf("MANUAL must not be runnable")
	}
}

func TestEnums_UnmarshalJSONRejectsUnknownValues(t *testing.T) {
	var status AllocationStatus
	if err := json.Unmarshal([]byte(`"Archived"`), &status); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if err := json.Unmarshal([]byte(`"Draft"`), &status); err != nil {
		t.Fatalf("unexpected error for valid status: %v", err)
	}

	var allocType AllocationType
	if err := json.Unmarshal([]byte(`"Seasonal"`), &allocType); err == nil {
		t.Fatalf("expected error for unknown type")
	}

	var basis AllocationBasis
	if err := json.Unmarshal([]byte(`"RANDOM"`), &basis); err == nil {
		t.Fatalf("expected error for unknown basis")
	}
	if err := json.Unmarshal([]byte(`"SALES_FALLBACK"`), &basis); err != nil {
		t.Fatalf("unexpected error for valid basis: %v", err)
	}
}
