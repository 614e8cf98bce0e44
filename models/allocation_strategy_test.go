package models

import (
	"fmt"
	"testing"
)

// NOTE: These tests are intentionally DB-free. Strategies, constraints and
// the warehouse capper are pure functions over candidate rows; persistence
// is covered separately against a real MySQL.

func testStore(code, grade string) *Store {
	return &Store{StoreCode: code, StoreGrade: grade}
}

func testVariant(code, size string) EligibleVariant {
	return EligibleVariant{VariantId: 1, VariantCode: code, GenArticleId: 1, GenArticleCode: "GA1001", SizeCode: size}
}

func rowQty(t *testing.T, rows []CandidateRow, storeCode, variantCode string) int {
	t.Helper()
	for _, r := range rows {
		if r.StoreCode == storeCode && r.VariantCode == variantCode {
			return r.Qty
		}
	}
	return 0
}

func sumQty(rows []CandidateRow) int {
	total := 0
	for _, r := range rows {
		total += r.Qty
	}
	return total
}

func TestAllocateByRatio_ProportionalSplit(t *testing.T) {
	stores := []*Store{testStore("ST001", "A"), testStore("ST002", "B")}
	variants := []EligibleVariant{testVariant("V1", "M")}
	supply := map[string]int{"V1": 17}

	rows := AllocateByRatio(stores, variants, supply, DefaultAllocationConfig())

	// weights 1.0 and 0.7 over supply 17: 10.0 and 7.0
	if got := rowQty(t, rows, "ST001", "V1"); got != 10 {
		t.Fatalf("expected ST001 to get 10, got %d", got)
	}
	if got := rowQty(t, rows, "ST002", "V1"); got != 7 {
		t.Fatalf("expected ST002 to get 7, got %d", got)
	}
	if total := sumQty(rows); total != 17 {
		t.Fatalf("expected total 17, got %d", total)
	}
}

func TestAllocateByRatio_NeverExceedsSupply(t *testing.T) {
	stores := []*Store{
		testStore("ST001", "A"), testStore("ST002", "A"), testStore("ST003", "A"),
		testStore("ST004", "B"), testStore("ST005", "C"), testStore("ST006", "D"),
	}
	variants := []EligibleVariant{testVariant("V1", "M")}

	for _, avail := range []int{1, 3, 7, 13, 100} {
		rows := AllocateByRatio(stores, variants, map[string]int{"V1": avail}, DefaultAllocationConfig())
		if total := sumQty(rows); total > avail {
			t.Fatalf("supply %d: allocated %d, exceeds availability", avail, total)
		}
	}
}

func TestAllocateByRatio_ExactHalfShareRoundsUp(t *testing.T) {
	stores := []*Store{testStore("ST001", "A"), testStore("ST002", "A")}
	variants := []EligibleVariant{testVariant("V1", "M")}

	rows := AllocateByRatio(stores, variants, map[string]int{"V1": 5}, DefaultAllocationConfig())

	// Equal weights over supply 5: each share is exactly 2.5. The first
	// store rounds up to 3, the second is capped at the remaining 2.
	if got := rowQty(t, rows, "ST001", "V1"); got != 3 {
		t.Fatalf("expected first store to get 3, got %d", got)
	}
	if got := rowQty(t, rows, "ST002", "V1"); got != 2 {
		t.Fatalf("expected second store to get the remaining 2, got %d", got)
	}
}

func TestAllocateByRatio_SkipsVariantsWithoutSupply(t *testing.T) {
	stores := []*Store{testStore("ST001", "A")}
	variants := []EligibleVariant{testVariant("V1", "M"), testVariant("V2", "L")}
	supply := map[string]int{"V1": 10}

	rows := AllocateByRatio(stores, variants, supply, DefaultAllocationConfig())

	for _, r := range rows {
		if r.VariantCode == "V2" {
			t.Fatalf("variant without warehouse stock must not be allocated")
		}
	}
}

func TestAllocateByRatio_UnknownGradeGetsPartialWeight(t *testing.T) {
	cfg := DefaultAllocationConfig()
	if got := cfg.GradeRatio("X").String(); got != "0.3" {
		t.Fatalf("expected unknown grade ratio 0.3, got %s", got)
	}

	stores := []*Store{testStore("ST001", "A"), testStore("ST002", "X")}
	variants := []EligibleVariant{testVariant("V1", "M")}
	rows := AllocateByRatio(stores, variants, map[string]int{"V1": 13}, cfg)

	// weights 1.0 and 0.3 over supply 13: 10.0 and 3.0
	if got := rowQty(t, rows, "ST002", "V1"); got != 3 {
		t.Fatalf("expected unknown-grade store to get 3, got %d", got)
	}
}

func TestAllocateBySales_ProportionalToSold(t *testing.T) {
	stores := []*Store{testStore("ST001", "A"), testStore("ST002", "B")}
	variants := []EligibleVariant{testVariant("V1", "M")}
	supply := map[string]int{"V1": 8}
	sales := map[string]map[string]int{"V1": {"ST001": 30, "ST002": 10}}

	rows := AllocateBySales(stores, variants, supply, sales, DefaultAllocationConfig())

	if got := rowQty(t, rows, "ST001", "V1"); got != 6 {
		t.Fatalf("expected ST001 to get 6, got %d", got)
	}
	if got := rowQty(t, rows, "ST002", "V1"); got != 2 {
		t.Fatalf("expected ST002 to get 2, got %d", got)
	}
	for _, r := range rows {
		if r.Basis != AllocationBasisSales {
			t.Fatalf("expected basis SALES, got %s", r.Basis)
		}
	}
}

func TestAllocateBySales_FallsBackWhenNoSales(t *testing.T) {
	stores := []*Store{testStore("ST001", "A"), testStore("ST002", "B")}
	variants := []EligibleVariant{testVariant("V1", "M")}
	supply := map[string]int{"V1": 10}

	rows := AllocateBySales(stores, variants, supply, nil, DefaultAllocationConfig())

	if len(rows) == 0 {
		t.Fatalf("expected fallback rows, got none")
	}
	for _, r := range rows {
		if r.Basis != AllocationBasisSalesFallback {
			t.Fatalf("expected basis SALES_FALLBACK, got %s", r.Basis)
		}
	}
	// round(1.0*10/2)=5, round(0.7*10/2)=4
	if got := rowQty(t, rows, "ST001", "V1"); got != 5 {
		t.Fatalf("expected ST001 fallback qty 5, got %d", got)
	}
	if got := rowQty(t, rows, "ST002", "V1"); got != 4 {
		t.Fatalf("expected ST002 fallback qty 4, got %d", got)
	}
}

func TestAllocateBySales_HighSellersAbsorbRounding(t *testing.T) {
	stores := []*Store{testStore("ST001", "C"), testStore("ST002", "A")}
	variants := []EligibleVariant{testVariant("V1", "M")}
	supply := map[string]int{"V1": 3}
	sales := map[string]map[string]int{"V1": {"ST001": 1, "ST002": 5}}

	rows := AllocateBySales(stores, variants, supply, sales, DefaultAllocationConfig())

	// ST002 is visited first: round(5/6*3)=3 takes the full supply.
	if got := rowQty(t, rows, "ST002", "V1"); got != 3 {
		t.Fatalf("expected top seller to get 3, got %d", got)
	}
	if got := rowQty(t, rows, "ST001", "V1"); got != 0 {
		t.Fatalf("expected exhausted supply to leave ST001 at 0, got %d", got)
	}
}

func TestAllocateByStock_TopsUpTowardTarget(t *testing.T) {
	// C grade target: 0.4 * 10 = 4.
	stores := []*Store{testStore("ST001", "C")}
	variants := []EligibleVariant{testVariant("V1", "M")}
	supply := map[string]int{"V1": 50}
	storeStock := map[string]map[string]int{"V1": {"ST001": 1}}

	rows := AllocateByStock(stores, variants, supply, storeStock, DefaultAllocationConfig())

	if got := rowQty(t, rows, "ST001", "V1"); got != 3 {
		t.Fatalf("expected need of 3 (target 4 - stock 1), got %d", got)
	}
}

func TestAllocateByStock_NeedierStoresFirst(t *testing.T) {
	stores := []*Store{testStore("ST001", "A"), testStore("ST002", "A")}
	variants := []EligibleVariant{testVariant("V1", "M")}
	supply := map[string]int{"V1": 5}
	// ST001 is empty (need 10), ST002 is at target (need 0).
	storeStock := map[string]map[string]int{"V1": {"ST002": 10}}

	rows := AllocateByStock(stores, variants, supply, storeStock, DefaultAllocationConfig())

	if got := rowQty(t, rows, "ST001", "V1"); got != 5 {
		t.Fatalf("expected needy store to take the whole supply, got %d", got)
	}
	if got := rowQty(t, rows, "ST002", "V1"); got != 0 {
		t.Fatalf("expected store at target to get nothing, got %d", got)
	}
}

func TestAllocateByStock_OverstockedNeedClampsToZero(t *testing.T) {
	stores := []*Store{testStore("ST001", "A")}
	variants := []EligibleVariant{testVariant("V1", "M")}
	supply := map[string]int{"V1": 20}
	storeStock := map[string]map[string]int{"V1": {"ST001": 25}}

	rows := AllocateByStock(stores, variants, supply, storeStock, DefaultAllocationConfig())

	if len(rows) != 0 {
		t.Fatalf("expected no rows for an overstocked store, got %d", len(rows))
	}
}

func constraintRow(store string, qty int) CandidateRow {
	return CandidateRow{StoreCode: store, VariantCode: "V1", Qty: qty, Basis: AllocationBasisRatio}
}

func TestApplyConstraints_MinDropsMaxClips(t *testing.T) {
	rows := []CandidateRow{
		constraintRow("ST001", 2),
		constraintRow("ST002", 8),
		constraintRow("ST003", 30),
	}
	minQty, maxQty := 3, 20

	out := ApplyConstraints(rows, &minQty, &maxQty, nil)

	if len(out) != 2 {
		t.Fatalf("expected row below min to be dropped, got %d rows", len(out))
	}
	if got := rowQty(t, out, "ST003", "V1"); got != 20 {
		t.Fatalf("expected clip to max 20, got %d", got)
	}
	if got := rowQty(t, out, "ST002", "V1"); got != 8 {
		t.Fatalf("expected untouched row to stay at 8, got %d", got)
	}
}

func TestApplyConstraints_TotalLimitScalesProportionally(t *testing.T) {
	rows := []CandidateRow{
		constraintRow("ST001", 50),
		constraintRow("ST002", 50),
		constraintRow("ST003", 50),
	}
	limit := 100

	out := ApplyConstraints(rows, nil, nil, &limit)

	total := sumQty(out)
	if total > limit {
		t.Fatalf("expected total <= %d after scaling, got %d", limit, total)
	}
	for _, r := range out {
		if r.Qty != 33 {
			t.Fatalf("expected each row scaled to 33, got %d", r.Qty)
		}
	}
}

func TestApplyConstraints_ManySmallRowsNeverExceedLimit(t *testing.T) {
	rows := make([]CandidateRow, 0, 150)
	for i := 0; i < 150; i++ {
		rows = append(rows, constraintRow(fmt.Sprintf("ST%03d", i), 1))
	}
	limit := 100

	out := ApplyConstraints(rows, nil, nil, &limit)

	// Per-row rounding must not creep the grand total back above the limit.
	if total := sumQty(out); total > limit {
		t.Fatalf("grand total %d exceeds total_qty_limit %d after scaling", total, limit)
	}
}

func TestApplyConstraints_UnderLimitUntouched(t *testing.T) {
	rows := []CandidateRow{constraintRow("ST001", 40), constraintRow("ST002", 40)}
	limit := 100

	out := ApplyConstraints(rows, nil, nil, &limit)

	if total := sumQty(out); total != 80 {
		t.Fatalf("expected total 80 untouched, got %d", total)
	}
}

func TestCapAtWarehouse_ScalesOvercommittedVariant(t *testing.T) {
	rows := []CandidateRow{
		constraintRow("ST001", 60),
		constraintRow("ST002", 60),
	}
	supply := map[string]int{"V1": 100}

	out := CapAtWarehouse(rows, supply)

	if total := sumQty(out); total > 100 {
		t.Fatalf("expected capped total <= 100, got %d", total)
	}
	if got := rowQty(t, out, "ST001", "V1"); got != 50 {
		t.Fatalf("expected proportional scale to 50, got %d", got)
	}
}

func TestCapAtWarehouse_ZeroesUnknownVariantsAndDropsZeroRows(t *testing.T) {
	rows := []CandidateRow{
		constraintRow("ST001", 10),
		{StoreCode: "ST001", VariantCode: "V9", Qty: 5, Basis: AllocationBasisRatio},
	}
	supply := map[string]int{"V1": 10}

	out := CapAtWarehouse(rows, supply)

	if len(out) != 1 {
		t.Fatalf("expected the unknown-variant row to be dropped, got %d rows", len(out))
	}
	if out[0].VariantCode != "V1" {
		t.Fatalf("expected surviving row for V1, got %s", out[0].VariantCode)
	}
}

func TestCapAtWarehouse_Idempotent(t *testing.T) {
	rows := []CandidateRow{
		constraintRow("ST001", 70),
		constraintRow("ST002", 50),
	}
	supply := map[string]int{"V1": 90}

	once := CapAtWarehouse(rows, supply)
	twice := CapAtWarehouse(once, supply)

	if len(once) != len(twice) {
		t.Fatalf("expected idempotent cap, row counts %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Qty != twice[i].Qty {
			t.Fatalf("expected idempotent cap, qty %d vs %d at row %d", once[i].Qty, twice[i].Qty, i)
		}
	}
}
