package models

import (
	"time"

	"gorm.io/gorm"
)

type WarehouseStock struct {
	ID            int       `gorm:"primary_key" json:"id"`
	WarehouseCode string    `gorm:"size:50;not null;uniqueIndex:idx_wh_variant,priority:1" json:"warehouse_code" binding:"required"`
	VariantCode   string    `gorm:"size:50;not null;uniqueIndex:idx_wh_variant,priority:2" json:"variant_code" binding:"required"`
	StockQty      int       `gorm:"not null;default:0" json:"stock_qty"`
	ReservedQty   int       `gorm:"not null;default:0" json:"reserved_qty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type StoreStock struct {
	ID          int       `gorm:"primary_key" json:"id"`
	StoreCode   string    `gorm:"size:50;not null;uniqueIndex:idx_store_variant,priority:1" json:"store_code" binding:"required"`
	VariantCode string    `gorm:"size:50;not null;uniqueIndex:idx_store_variant,priority:2" json:"variant_code" binding:"required"`
	StockQty    int       `gorm:"not null;default:0" json:"stock_qty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type StoreSales struct {
	ID          int       `gorm:"primary_key" json:"id"`
	StoreCode   string    `gorm:"size:50;not null;index:idx_sales_store_variant,priority:1" json:"store_code" binding:"required"`
	VariantCode string    `gorm:"size:50;not null;index:idx_sales_store_variant,priority:2" json:"variant_code" binding:"required"`
	SaleDate    time.Time `gorm:"index;not null" json:"sale_date" binding:"required"`
	QtySold     int       `gorm:"not null;default:0" json:"qty_sold"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetWarehouseAvailability returns available supply per variant at the
// given warehouse: max(0, stock - reserved). Variants with no stock row
// are simply absent from the map. Runs on the caller's handle so it can
// share the run transaction (and its advisory lock).
func GetWarehouseAvailability(tx *gorm.DB, warehouseCode string, variantCodes []string) (map[string]int, error) {
	type stockRow struct {
		VariantCode string
		StockQty    int
		ReservedQty int
	}

	var rows []stockRow
	dbCtx := tx.Model(&WarehouseStock{}).
		Select("variant_code, stock_qty, reserved_qty").
		Where("warehouse_code = ?", warehouseCode)
	if len(variantCodes) > 0 {
		dbCtx = dbCtx.Where("variant_code IN ?", variantCodes)
	}
	if err := dbCtx.Scan(&rows).Error; err != nil {
		return nil, err
	}

	supply := make(map[string]int, len(rows))
	for _, r := range rows {
		avail := r.StockQty - r.ReservedQty
		if avail < 0 {
			avail = 0
		}
		supply[r.VariantCode] = avail
	}
	return supply, nil
}

// GetStoreSalesTotals sums units sold per variant per store since the
// given date. Result: variant code -> store code -> qty sold.
func GetStoreSalesTotals(tx *gorm.DB, variantCodes []string, storeCodes []string, since time.Time) (map[string]map[string]int, error) {
	type salesRow struct {
		VariantCode string
		StoreCode   string
		TotalSold   int
	}

	var rows []salesRow
	err := tx.Model(&StoreSales{}).
		Select("variant_code, store_code, COALESCE(SUM(qty_sold), 0) AS total_sold").
		Where("variant_code IN ? AND store_code IN ? AND sale_date >= ?", variantCodes, storeCodes, since).
		Group("variant_code, store_code").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	sales := make(map[string]map[string]int)
	for _, r := range rows {
		if sales[r.VariantCode] == nil {
			sales[r.VariantCode] = make(map[string]int)
		}
		sales[r.VariantCode][r.StoreCode] = r.TotalSold
	}
	return sales, nil
}

// GetStoreStockLevels returns on-hand stock per variant per store.
// Result: variant code -> store code -> stock qty. Missing rows mean zero.
func GetStoreStockLevels(tx *gorm.DB, variantCodes []string, storeCodes []string) (map[string]map[string]int, error) {
	type stockRow struct {
		VariantCode string
		StoreCode   string
		StockQty    int
	}

	var rows []stockRow
	err := tx.Model(&StoreStock{}).
		Select("variant_code, store_code, stock_qty").
		Where("variant_code IN ? AND store_code IN ?", variantCodes, storeCodes).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stock := make(map[string]map[string]int)
	for _, r := range rows {
		if stock[r.VariantCode] == nil {
			stock[r.VariantCode] = make(map[string]int)
		}
		stock[r.VariantCode][r.StoreCode] = r.StockQty
	}
	return stock, nil
}
