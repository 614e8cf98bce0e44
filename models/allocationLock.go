package models

import (
	"fmt"

	"github.com/mmdatafocus/allocation_backend/config"
	"gorm.io/gorm"
)

const warehouseAllocationLockWaitSeconds = 30

func warehouseAllocationLockName(warehouseCode string) string {
	return fmt.Sprintf("allocation:%s", warehouseCode)
}

// AcquireWarehouseAllocationLock serializes allocation runs per warehouse
// with a MySQL advisory lock. GET_LOCK is connection-scoped, so it must be
// taken on the run transaction and held until that transaction's
// connection releases it.
func AcquireWarehouseAllocationLock(tx *gorm.DB, warehouseCode string) error {
	lockName := warehouseAllocationLockName(warehouseCode)

	var got int
	err := tx.Raw("SELECT GET_LOCK(?, ?)", lockName, warehouseAllocationLockWaitSeconds).Scan(&got).Error
	if err != nil {
		return fmt.Errorf("acquire allocation lock %q: %w", lockName, err)
	}
	if got != 1 {
		return fmt.Errorf("allocation lock %q not acquired within %ds", lockName, warehouseAllocationLockWaitSeconds)
	}
	return nil
}

// ReleaseWarehouseAllocationLock is best-effort; the lock also drops when
// the transaction's connection is released.
func ReleaseWarehouseAllocationLock(tx *gorm.DB, warehouseCode string) {
	lockName := warehouseAllocationLockName(warehouseCode)

	var released int
	if err := tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error; err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "models", "ReleaseWarehouseAllocationLock", "Failed to release allocation lock", lockName, err)
	}
}
