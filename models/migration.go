package models

import (
	"log"

	"github.com/mmdatafocus/allocation_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Division{},
		&Store{},
		&GenArticle{},
		&VariantArticle{},
		&WarehouseStock{},
		&StoreStock{},
		&StoreSales{},
		&AllocationSetting{},
		&AllocationHeader{},
		&AllocationDetail{},
		&History{},
		&DispatchRecord{},
	)
	if err != nil {
		log.Fatalf("failed to migrate tables: %v", err)
	}
	log.Println("table migration complete")
}
