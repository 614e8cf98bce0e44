package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/allocation_backend/config"
	"github.com/mmdatafocus/allocation_backend/utils"
)

type Division struct {
	ID           int       `gorm:"primary_key" json:"id"`
	DivisionCode string    `gorm:"size:50;uniqueIndex;not null" json:"division_code" binding:"required"`
	DivisionName string    `gorm:"size:255;not null" json:"division_name" binding:"required"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Store struct {
	ID         int       `gorm:"primary_key" json:"id"`
	StoreCode  string    `gorm:"size:50;uniqueIndex;not null" json:"store_code" binding:"required"`
	StoreName  string    `gorm:"size:255;not null" json:"store_name" binding:"required"`
	StoreGrade string    `gorm:"size:10;index;not null" json:"store_grade"`
	Region     string    `gorm:"size:100" json:"region"`
	Hub        string    `gorm:"size:100" json:"hub"`
	DivisionId int       `gorm:"index" json:"division_id"`
	IsActive   *bool     `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateStore(ctx context.Context, input Store) (*Store, error) {
	if input.StoreCode == "" {
		return nil, utils.NewBusinessError("store code is required")
	}
	if input.IsActive == nil {
		input.IsActive = utils.NewTrue()
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&input).Error; err != nil {
		return nil, err
	}
	return &input, nil
}

func GetStoreByCode(ctx context.Context, storeCode string) (*Store, error) {
	db := config.GetDB()
	var store Store
	err := db.WithContext(ctx).Where("store_code = ?", storeCode).First(&store).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &store, nil
}

// GetEligibleStores resolves the target store set for an allocation run.
// Filters are AND-ed; inactive stores never qualify.
func GetEligibleStores(ctx context.Context, storeCodes []string, storeGrades []string, divisionId int) ([]*Store, error) {
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Where("is_active = ?", true)
	if len(storeCodes) > 0 {
		dbCtx = dbCtx.Where("store_code IN ?", utils.UniqueSlice(storeCodes))
	}
	if len(storeGrades) > 0 {
		dbCtx = dbCtx.Where("store_grade IN ?", utils.UniqueSlice(storeGrades))
	}
	if divisionId > 0 {
		dbCtx = dbCtx.Where("division_id = ?", divisionId)
	}

	var stores []*Store
	if err := dbCtx.Order("store_code").Find(&stores).Error; err != nil {
		return nil, err
	}
	if len(stores) == 0 {
		return nil, utils.NewBusinessError(fmt.Sprintf("no eligible stores found (codes=%d grades=%d division=%d)", len(storeCodes), len(storeGrades), divisionId))
	}
	return stores, nil
}
