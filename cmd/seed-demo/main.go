// seed-demo loads a small demo dataset (division, graded stores, articles,
// variants, warehouse stock and recent sales) so allocation runs can be
// exercised against an empty database.
//
// Usage (from backend directory):
//   ALLOW_DEMO_SEED=true DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/allocation_backend/config"
	"github.com/mmdatafocus/allocation_backend/models"
	"github.com/mmdatafocus/allocation_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	if !config.DemoSeedAllowed() {
		fmt.Fprintln(os.Stderr, "demo seeding is disabled. Set ALLOW_DEMO_SEED=true to enable.")
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	if err := db.Transaction(seed); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("demo data seeded")
}

func seed(tx *gorm.DB) error {
	division := models.Division{DivisionCode: "MENS", DivisionName: "Menswear", IsActive: utils.NewTrue()}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&division).Error; err != nil {
		return err
	}
	if division.ID == 0 {
		if err := tx.Where("division_code = ?", division.DivisionCode).First(&division).Error; err != nil {
			return err
		}
	}

	stores := []models.Store{
		{StoreCode: "ST001", StoreName: "Downtown Flagship", StoreGrade: "A", Region: "Yangon", Hub: "YGN", DivisionId: division.ID, IsActive: utils.NewTrue()},
		{StoreCode: "ST002", StoreName: "Junction Square", StoreGrade: "A", Region: "Yangon", Hub: "YGN", DivisionId: division.ID, IsActive: utils.NewTrue()},
		{StoreCode: "ST003", StoreName: "Ocean North Point", StoreGrade: "B", Region: "Mandalay", Hub: "MDY", DivisionId: division.ID, IsActive: utils.NewTrue()},
		{StoreCode: "ST004", StoreName: "City Mart Annex", StoreGrade: "B", Region: "Yangon", Hub: "YGN", DivisionId: division.ID, IsActive: utils.NewTrue()},
		{StoreCode: "ST005", StoreName: "Bagan Outlet", StoreGrade: "C", Region: "Bagan", Hub: "NYU", DivisionId: division.ID, IsActive: utils.NewTrue()},
		{StoreCode: "ST006", StoreName: "Taunggyi Corner", StoreGrade: "D", Region: "Shan", Hub: "HEH", DivisionId: division.ID, IsActive: utils.NewTrue()},
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&stores).Error; err != nil {
		return err
	}

	articles := []models.GenArticle{
		{GenArticleCode: "GA1001", GenArticleName: "Oxford Shirt", DivisionId: division.ID, Season: "SS26", IsActive: utils.NewTrue()},
		{GenArticleCode: "GA1002", GenArticleName: "Chino Pants", DivisionId: division.ID, Season: "SS26", IsActive: utils.NewTrue()},
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&articles).Error; err != nil {
		return err
	}
	for i := range articles {
		if articles[i].ID == 0 {
			if err := tx.Where("gen_article_code = ?", articles[i].GenArticleCode).First(&articles[i]).Error; err != nil {
				return err
			}
		}
	}

	sizes := []string{"S", "M", "L", "XL"}
	colors := map[string]string{"GA1001": "WHT", "GA1002": "NVY"}
	var variants []models.VariantArticle
	for _, ga := range articles {
		for _, size := range sizes {
			variants = append(variants, models.VariantArticle{
				VariantCode:  fmt.Sprintf("%s-%s-%s", ga.GenArticleCode, colors[ga.GenArticleCode], size),
				GenArticleId: ga.ID,
				SizeCode:     size,
				ColorCode:    colors[ga.GenArticleCode],
				IsActive:     utils.NewTrue(),
			})
		}
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&variants).Error; err != nil {
		return err
	}

	var warehouseStock []models.WarehouseStock
	for i, v := range variants {
		warehouseStock = append(warehouseStock, models.WarehouseStock{
			WarehouseCode: models.DefaultWarehouseCode,
			VariantCode:   v.VariantCode,
			StockQty:      120 + 20*(i%4),
			ReservedQty:   10 * (i % 3),
		})
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&warehouseStock).Error; err != nil {
		return err
	}

	// Two weeks of sales skewed toward the A-grade stores so SALES runs
	// produce a visible spread.
	salesWeights := map[string]int{"ST001": 6, "ST002": 5, "ST003": 3, "ST004": 2, "ST005": 1, "ST006": 0}
	var sales []models.StoreSales
	var storeStock []models.StoreStock
	for _, s := range stores {
		for j, v := range variants {
			weight := salesWeights[s.StoreCode]
			if weight > 0 {
				for day := 1; day <= 14; day += 3 {
					sales = append(sales, models.StoreSales{
						StoreCode:   s.StoreCode,
						VariantCode: v.VariantCode,
						SaleDate:    time.Now().AddDate(0, 0, -day),
						QtySold:     weight + j%2,
					})
				}
			}
			storeStock = append(storeStock, models.StoreStock{
				StoreCode:   s.StoreCode,
				VariantCode: v.VariantCode,
				StockQty:    weight + j%3,
			})
		}
	}
	if len(sales) > 0 {
		if err := tx.CreateInBatches(&sales, 500).Error; err != nil {
			return err
		}
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&storeStock, 500).Error; err != nil {
		return err
	}

	setting := models.AllocationSetting{
		DivisionId:      division.ID,
		GradeRatios:     []byte(`{"A": 1.0, "B": 0.7, "C": 0.4, "D": 0.2}`),
		SizeCurve:       []byte(`{"S": 0.8, "M": 1.2, "L": 1.1, "XL": 0.9}`),
		BaseStockTarget: 10,
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&setting).Error
}
