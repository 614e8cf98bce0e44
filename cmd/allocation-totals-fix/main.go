// allocation-totals-fix recomputes header totals (total_qty, total_stores,
// total_options) from allocation_details and repairs drifted headers.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/allocation-totals-fix [--allocation-id N] [--dry-run]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/allocation_backend/config"
	"gorm.io/gorm"
)

type totalsRow struct {
	AllocationId int `gorm:"column:allocation_id"`
	TotalQty     int `gorm:"column:total_qty"`
	TotalStores  int `gorm:"column:total_stores"`
	TotalOptions int `gorm:"column:total_options"`
	HdrQty       int `gorm:"column:hdr_qty"`
	HdrStores    int `gorm:"column:hdr_stores"`
	HdrOptions   int `gorm:"column:hdr_options"`
}

func main() {
	allocationID := flag.Int("allocation-id", 0, "Optional: fix a single allocation id")
	dryRun := flag.Bool("dry-run", false, "Scan only (no writes)")
	continueOnError := flag.Bool("continue-on-error", true, "Continue when a record fails")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	query := `
		SELECT
			h.id AS allocation_id,
			COALESCE(SUM(d.final_qty), 0) AS total_qty,
			COUNT(DISTINCT d.store_code) AS total_stores,
			COUNT(DISTINCT d.variant_code) AS total_options,
			h.total_qty AS hdr_qty,
			h.total_stores AS hdr_stores,
			h.total_options AS hdr_options
		FROM allocation_headers h
		LEFT JOIN allocation_details d ON d.allocation_id = h.id
		WHERE h.status <> 'Cancelled'
	`
	args := []interface{}{}
	if *allocationID > 0 {
		query += " AND h.id = ?"
		args = append(args, *allocationID)
	}
	query += `
		GROUP BY h.id, h.total_qty, h.total_stores, h.total_options
		HAVING total_qty <> hdr_qty OR total_stores <> hdr_stores OR total_options <> hdr_options
		ORDER BY h.id ASC
	`

	var rows []totalsRow
	if err := db.Raw(query, args...).Scan(&rows).Error; err != nil {
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Found %d allocations with drifted totals\n", len(rows))

	for _, r := range rows {
		fmt.Printf("allocation_id=%d qty=%d->%d stores=%d->%d options=%d->%d\n",
			r.AllocationId, r.HdrQty, r.TotalQty, r.HdrStores, r.TotalStores, r.HdrOptions, r.TotalOptions)
		if *dryRun {
			continue
		}
		if err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Exec(`
				UPDATE allocation_headers
				SET total_qty = ?, total_stores = ?, total_options = ?
				WHERE id = ?
			`, r.TotalQty, r.TotalStores, r.TotalOptions, r.AllocationId).Error
		}); err != nil {
			if *continueOnError {
				fmt.Fprintf(os.Stderr, "allocation_id=%d failed (skipping): %v\n", r.AllocationId, err)
				continue
			}
			fmt.Fprintf(os.Stderr, "allocation_id=%d failed: %v\n", r.AllocationId, err)
			os.Exit(1)
		}
	}
}
