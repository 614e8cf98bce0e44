package models

import (
	"encoding/json"
	"fmt"
)

type AllocationType string

const (
	AllocationTypeInitial       AllocationType = "Initial"
	AllocationTypeReplenishment AllocationType = "Replenishment"
	AllocationTypeTransfer      AllocationType = "Transfer"
)

func (t AllocationType) IsValid() bool {
	switch t {
	case AllocationTypeInitial, AllocationTypeReplenishment, AllocationTypeTransfer:
		return true
	}
	return false
}

func (t AllocationType) String() string { return string(t) }

func (t *AllocationType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = AllocationType(s)
	if !t.IsValid() {
		return fmt.Errorf("%s is not a valid AllocationType", s)
	}
	return nil
}

type AllocationStatus string

const (
	AllocationStatusDraft      AllocationStatus = "Draft"
	AllocationStatusInProgress AllocationStatus = "InProgress"
	AllocationStatusApproved   AllocationStatus = "Approved"
	AllocationStatusExecuted   AllocationStatus = "Executed"
	AllocationStatusCancelled  AllocationStatus = "Cancelled"
)

func (s AllocationStatus) IsValid() bool {
	switch s {
	case AllocationStatusDraft, AllocationStatusInProgress, AllocationStatusApproved,
		AllocationStatusExecuted, AllocationStatusCancelled:
		return true
	}
	return false
}

func (s AllocationStatus) String() string { return string(s) }

// CanTransition encodes the allocation lifecycle. Executed and Cancelled
// are terminal; an executed allocation is immutable.
func (s AllocationStatus) CanTransition(to AllocationStatus) bool {
	switch s {
	case AllocationStatusInProgress:
		return to == AllocationStatusDraft || to == AllocationStatusCancelled
	case AllocationStatusDraft:
		return to == AllocationStatusApproved || to == AllocationStatusCancelled
	case AllocationStatusApproved:
		return to == AllocationStatusExecuted || to == AllocationStatusCancelled
	}
	return false
}

func (s *AllocationStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	*s = AllocationStatus(str)
	if !s.IsValid() {
		return fmt.Errorf("%s is not a valid AllocationStatus", str)
	}
	return nil
}

// AllocationBasis records which strategy produced a detail row. Overridden
// rows keep their original basis; MANUAL is reserved for rows created by
// hand outside an engine run.
type AllocationBasis string

const (
	AllocationBasisRatio         AllocationBasis = "RATIO"
	AllocationBasisSales         AllocationBasis = "SALES"
	AllocationBasisSalesFallback AllocationBasis = "SALES_FALLBACK"
	AllocationBasisStock         AllocationBasis = "STOCK"
	AllocationBasisManual        AllocationBasis = "MANUAL"
)

func (b AllocationBasis) IsValid() bool {
	switch b {
	case AllocationBasisRatio, AllocationBasisSales, AllocationBasisSalesFallback,
		AllocationBasisStock, AllocationBasisManual:
		return true
	}
	return false
}

func (b AllocationBasis) String() string { return string(b) }

func (b *AllocationBasis) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*b = AllocationBasis(s)
	if !b.IsValid() {
		return fmt.Errorf("%s is not a valid AllocationBasis", s)
	}
	return nil
}

// IsRunnable reports whether the basis can be requested for an engine run.
// SALES_FALLBACK is assigned by the engine, never requested.
func (b AllocationBasis) IsRunnable() bool {
	switch b {
	case AllocationBasisRatio, AllocationBasisSales, AllocationBasisStock:
		return true
	}
	return false
}

type DispatchAction string

const (
	DispatchActionCreate DispatchAction = "C"
	DispatchActionUpdate DispatchAction = "U"
	DispatchActionDelete DispatchAction = "D"
)

type HistoryActionType string

const (
	HistoryActionCreate   HistoryActionType = "Create"
	HistoryActionUpdate   HistoryActionType = "Update"
	HistoryActionOverride HistoryActionType = "Override"
	HistoryActionApprove  HistoryActionType = "Approve"
	HistoryActionExecute  HistoryActionType = "Execute"
	HistoryActionCancel   HistoryActionType = "Cancel"
)
