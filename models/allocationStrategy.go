package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CandidateRow is one proposed store/variant allocation. Strategies emit
// candidate rows; the constraint enforcer and warehouse capper reshape
// them before anything is persisted.
type CandidateRow struct {
	StoreCode      string
	StoreGrade     string
	GenArticleId   int
	GenArticleCode string
	VariantId      int
	VariantCode    string
	SizeCode       string
	ColorCode      string
	Qty            int
	Basis          AllocationBasis
}

// AllocateByRatio distributes each variant's supply across stores in
// proportion to grade_ratio * size_factor. The walk is self-capping: a
// rounded share never exceeds what is left of the variant's supply, so a
// variant's rows can never sum past its availability.
func AllocateByRatio(stores []*Store, variants []EligibleVariant, supply map[string]int, cfg AllocationConfig) []CandidateRow {
	var rows []CandidateRow

	for _, v := range variants {
		avail, ok := supply[v.VariantCode]
		if !ok || avail <= 0 {
			continue
		}

		sizeFactor := cfg.SizeFactor(v.SizeCode)
		weights := make([]decimal.Decimal, len(stores))
		totalWeight := decimal.Zero
		for i, s := range stores {
			weights[i] = cfg.GradeRatio(s.StoreGrade).Mul(sizeFactor)
			totalWeight = totalWeight.Add(weights[i])
		}
		if totalWeight.IsZero() {
			continue
		}

		availDec := decimal.NewFromInt(int64(avail))
		remaining := avail
		for i, s := range stores {
			if remaining <= 0 {
				break
			}
			// Multiply before dividing: Div truncates at its default
			// precision, which turns exact half shares into low results.
			qty := int(weights[i].Mul(availDec).DivRound(totalWeight, 0).IntPart())
			if qty <= 0 {
				continue
			}
			if qty > remaining {
				qty = remaining
			}
			rows = append(rows, CandidateRow{
				StoreCode:      s.StoreCode,
				StoreGrade:     s.StoreGrade,
				GenArticleId:   v.GenArticleId,
				GenArticleCode: v.GenArticleCode,
				VariantId:      v.VariantId,
				VariantCode:    v.VariantCode,
				SizeCode:       v.SizeCode,
				ColorCode:      v.ColorCode,
				Qty:            qty,
				Basis:          AllocationBasisRatio,
			})
			remaining -= qty
		}
	}
	return rows
}

// AllocateBySales distributes each variant's supply in proportion to units
// sold during the lookback window, visiting higher-selling stores first so
// they absorb rounding before supply runs out. When no eligible store sold
// the variant at all, it falls back to an even grade-weighted split and
// tags those rows SALES_FALLBACK.
func AllocateBySales(stores []*Store, variants []EligibleVariant, supply map[string]int, sales map[string]map[string]int, cfg AllocationConfig) []CandidateRow {
	var rows []CandidateRow

	for _, v := range variants {
		avail, ok := supply[v.VariantCode]
		if !ok || avail <= 0 {
			continue
		}
		availDec := decimal.NewFromInt(int64(avail))

		variantSales := sales[v.VariantCode]
		totalSales := 0
		for _, s := range stores {
			totalSales += variantSales[s.StoreCode]
		}

		if totalSales == 0 {
			storeCount := decimal.NewFromInt(int64(len(stores)))
			remaining := avail
			for _, s := range stores {
				if remaining <= 0 {
					break
				}
				qty := int(cfg.GradeRatio(s.StoreGrade).Mul(availDec).DivRound(storeCount, 0).IntPart())
				if qty <= 0 {
					continue
				}
				if qty > remaining {
					qty = remaining
				}
				rows = append(rows, CandidateRow{
					StoreCode:      s.StoreCode,
					StoreGrade:     s.StoreGrade,
					GenArticleId:   v.GenArticleId,
					GenArticleCode: v.GenArticleCode,
					VariantId:      v.VariantId,
					VariantCode:    v.VariantCode,
					SizeCode:       v.SizeCode,
					ColorCode:      v.ColorCode,
					Qty:            qty,
					Basis:          AllocationBasisSalesFallback,
				})
				remaining -= qty
			}
			continue
		}

		ordered := make([]*Store, len(stores))
		copy(ordered, stores)
		sort.SliceStable(ordered, func(i, j int) bool {
			return variantSales[ordered[i].StoreCode] > variantSales[ordered[j].StoreCode]
		})

		totalSalesDec := decimal.NewFromInt(int64(totalSales))
		remaining := avail
		for _, s := range ordered {
			if remaining <= 0 {
				break
			}
			sold := variantSales[s.StoreCode]
			qty := int(decimal.NewFromInt(int64(sold)).Mul(availDec).DivRound(totalSalesDec, 0).IntPart())
			if qty <= 0 {
				continue
			}
			if qty > remaining {
				qty = remaining
			}
			rows = append(rows, CandidateRow{
				StoreCode:      s.StoreCode,
				StoreGrade:     s.StoreGrade,
				GenArticleId:   v.GenArticleId,
				GenArticleCode: v.GenArticleCode,
				VariantId:      v.VariantId,
				VariantCode:    v.VariantCode,
				SizeCode:       v.SizeCode,
				ColorCode:      v.ColorCode,
				Qty:            qty,
				Basis:          AllocationBasisSales,
			})
			remaining -= qty
		}
	}
	return rows
}

// AllocateByStock tops stores up toward a grade-weighted target level:
// need = max(0, grade_ratio * base_target - current_stock). Needier stores
// are filled first; once the variant's supply is exhausted the rest get
// nothing.
func AllocateByStock(stores []*Store, variants []EligibleVariant, supply map[string]int, storeStock map[string]map[string]int, cfg AllocationConfig) []CandidateRow {
	baseTarget := decimal.NewFromInt(int64(cfg.BaseStockTarget))
	var rows []CandidateRow

	for _, v := range variants {
		avail, ok := supply[v.VariantCode]
		if !ok || avail <= 0 {
			continue
		}
		variantStock := storeStock[v.VariantCode]

		type needRow struct {
			store *Store
			need  int
		}
		needs := make([]needRow, 0, len(stores))
		for _, s := range stores {
			target := cfg.GradeRatio(s.StoreGrade).Mul(baseTarget)
			current := decimal.NewFromInt(int64(variantStock[s.StoreCode]))
			need := int(target.Sub(current).IntPart())
			if need < 0 {
				need = 0
			}
			needs = append(needs, needRow{store: s, need: need})
		}
		sort.SliceStable(needs, func(i, j int) bool {
			return needs[i].need > needs[j].need
		})

		remaining := avail
		for _, n := range needs {
			if remaining <= 0 {
				break
			}
			qty := n.need
			if qty <= 0 {
				continue
			}
			if qty > remaining {
				qty = remaining
			}
			rows = append(rows, CandidateRow{
				StoreCode:      n.store.StoreCode,
				StoreGrade:     n.store.StoreGrade,
				GenArticleId:   v.GenArticleId,
				GenArticleCode: v.GenArticleCode,
				VariantId:      v.VariantId,
				VariantCode:    v.VariantCode,
				SizeCode:       v.SizeCode,
				ColorCode:      v.ColorCode,
				Qty:            qty,
				Basis:          AllocationBasisStock,
			})
			remaining -= qty
		}
	}
	return rows
}

// ApplyConstraints enforces run-level constraints in order: drop rows
// below the per-store minimum, clip rows to the per-store maximum, then
// proportionally scale everything down if the run exceeds the total
// quantity limit. Scaling rounds each row down so the scaled grand total
// can never end up above the limit; rows scaled to zero survive here and
// are dropped by the warehouse capper.
func ApplyConstraints(rows []CandidateRow, perStoreMin *int, perStoreMax *int, totalQtyLimit *int) []CandidateRow {
	out := make([]CandidateRow, 0, len(rows))
	for _, r := range rows {
		if perStoreMin != nil && *perStoreMin > 0 && r.Qty < *perStoreMin {
			continue
		}
		if perStoreMax != nil && *perStoreMax > 0 && r.Qty > *perStoreMax {
			r.Qty = *perStoreMax
		}
		out = append(out, r)
	}

	if totalQtyLimit == nil || *totalQtyLimit <= 0 {
		return out
	}
	total := 0
	for _, r := range out {
		total += r.Qty
	}
	if total <= *totalQtyLimit {
		return out
	}

	for i := range out {
		out[i].Qty = int(int64(out[i].Qty) * int64(*totalQtyLimit) / int64(total))
	}
	return out
}

// CapAtWarehouse is the final guard: per variant, if allocated quantities
// sum past warehouse availability, every row for that variant is scaled
// down proportionally, rounding down so the capped total can never creep
// back over availability. Variants with no supply at all are zeroed. Rows
// that end at zero or below are dropped. Running it twice is a no-op.
func CapAtWarehouse(rows []CandidateRow, supply map[string]int) []CandidateRow {
	totals := make(map[string]int)
	for _, r := range rows {
		totals[r.VariantCode] += r.Qty
	}

	out := make([]CandidateRow, 0, len(rows))
	for _, r := range rows {
		avail, ok := supply[r.VariantCode]
		if !ok || avail <= 0 {
			continue
		}
		if total := totals[r.VariantCode]; total > avail {
			// Integer floor math: sum of floors cannot exceed avail.
			r.Qty = int(int64(r.Qty) * int64(avail) / int64(total))
		}
		if r.Qty <= 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}
