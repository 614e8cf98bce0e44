package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmdatafocus/allocation_backend/config"
	"github.com/mmdatafocus/allocation_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AllocationSetting stores per-division tuning for the engine. Absent rows
// fall back to the built-in defaults below.
type AllocationSetting struct {
	ID              int       `gorm:"primary_key" json:"id"`
	DivisionId      int       `gorm:"uniqueIndex;not null" json:"division_id"`
	GradeRatios     []byte    `gorm:"type:json" json:"grade_ratios"`
	SizeCurve       []byte    `gorm:"type:json" json:"size_curve"`
	BaseStockTarget int       `gorm:"not null;default:0" json:"base_stock_target"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	defaultBaseStockTarget    = 10
	defaultUnknownGradeRatio  = "0.3"
	allocationSettingCacheTTL = 10 * time.Minute
)

// AllocationConfig is the resolved, in-memory form the strategies consume.
type AllocationConfig struct {
	GradeRatios     map[string]decimal.Decimal
	SizeCurve       map[string]decimal.Decimal
	BaseStockTarget int
}

func DefaultAllocationConfig() AllocationConfig {
	return AllocationConfig{
		GradeRatios: map[string]decimal.Decimal{
			"A": decimal.NewFromFloat(1.0),
			"B": decimal.NewFromFloat(0.7),
			"C": decimal.NewFromFloat(0.4),
			"D": decimal.NewFromFloat(0.2),
		},
		SizeCurve:       map[string]decimal.Decimal{},
		BaseStockTarget: defaultBaseStockTarget,
	}
}

// GradeRatio returns the weight for a store grade; unknown grades get 0.3
// so a new grade still receives some allocation instead of none.
func (c AllocationConfig) GradeRatio(grade string) decimal.Decimal {
	if r, ok := c.GradeRatios[grade]; ok {
		return r
	}
	return decimal.RequireFromString(defaultUnknownGradeRatio)
}

// SizeFactor returns the size-curve multiplier; unknown sizes are neutral.
func (c AllocationConfig) SizeFactor(sizeCode string) decimal.Decimal {
	if f, ok := c.SizeCurve[sizeCode]; ok {
		return f
	}
	return decimal.NewFromInt(1)
}

type allocationSettingCache struct {
	GradeRatios     map[string]float64 `json:"grade_ratios"`
	SizeCurve       map[string]float64 `json:"size_curve"`
	BaseStockTarget int                `json:"base_stock_target"`
}

func allocationSettingCacheKey(divisionId int) string {
	return fmt.Sprintf("allocation_setting:%d", divisionId)
}

func configFromCache(cached allocationSettingCache) AllocationConfig {
	cfg := DefaultAllocationConfig()
	if len(cached.GradeRatios) > 0 {
		cfg.GradeRatios = floatMapToDecimal(cached.GradeRatios)
	}
	if len(cached.SizeCurve) > 0 {
		cfg.SizeCurve = floatMapToDecimal(cached.SizeCurve)
	}
	if cached.BaseStockTarget > 0 {
		cfg.BaseStockTarget = cached.BaseStockTarget
	}
	return cfg
}

func floatMapToDecimal(m map[string]float64) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		out[k] = decimal.NewFromFloat(v)
	}
	return out
}

// GetAllocationConfig resolves the engine configuration for a division:
// redis first, then db, then built-in defaults. Cache misses are cached;
// redis failures degrade to a db read.
func GetAllocationConfig(ctx context.Context, divisionId int) (AllocationConfig, error) {
	var cached allocationSettingCache
	found, err := config.GetRedisObject(allocationSettingCacheKey(divisionId), &cached)
	if err == nil && found {
		return configFromCache(cached), nil
	}

	db := config.GetDB()
	var setting AllocationSetting
	err = db.WithContext(ctx).Where("division_id = ?", divisionId).First(&setting).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return DefaultAllocationConfig(), nil
		}
		return AllocationConfig{}, err
	}

	cached = allocationSettingCache{BaseStockTarget: setting.BaseStockTarget}
	if len(setting.GradeRatios) > 0 {
		if err := json.Unmarshal(setting.GradeRatios, &cached.GradeRatios); err != nil {
			return AllocationConfig{}, fmt.Errorf("invalid grade_ratios json for division %d: %w", divisionId, err)
		}
	}
	if len(setting.SizeCurve) > 0 {
		if err := json.Unmarshal(setting.SizeCurve, &cached.SizeCurve); err != nil {
			return AllocationConfig{}, fmt.Errorf("invalid size_curve json for division %d: %w", divisionId, err)
		}
	}

	// best-effort cache write
	_ = config.SetRedisObject(allocationSettingCacheKey(divisionId), cached, allocationSettingCacheTTL)

	return configFromCache(cached), nil
}

// InvalidateAllocationConfig drops the cached settings for a division.
func InvalidateAllocationConfig(divisionId int) error {
	return config.RemoveRedisKey(allocationSettingCacheKey(divisionId))
}

// NewAllocationSetting is the upsert input for a division's engine tuning.
type NewAllocationSetting struct {
	GradeRatios     map[string]float64 `json:"grade_ratios"`
	SizeCurve       map[string]float64 `json:"size_curve"`
	BaseStockTarget int                `json:"base_stock_target"`
}

// UpsertAllocationSetting creates or replaces the settings row for a
// division and drops its cache entry so the next run sees the change.
func UpsertAllocationSetting(ctx context.Context, divisionId int, input NewAllocationSetting) (*AllocationSetting, error) {
	if divisionId <= 0 {
		return nil, utils.NewBusinessError("division id is required")
	}
	for grade, v := range input.GradeRatios {
		if v < 0 {
			return nil, utils.NewBusinessError(fmt.Sprintf("grade ratio for %s must not be negative", grade))
		}
	}
	for size, v := range input.SizeCurve {
		if v < 0 {
			return nil, utils.NewBusinessError(fmt.Sprintf("size factor for %s must not be negative", size))
		}
	}
	if input.BaseStockTarget < 0 {
		return nil, utils.NewBusinessError("base stock target must not be negative")
	}

	gradeJSON, err := json.Marshal(input.GradeRatios)
	if err != nil {
		return nil, err
	}
	sizeJSON, err := json.Marshal(input.SizeCurve)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var setting AllocationSetting
	err = db.WithContext(ctx).Where("division_id = ?", divisionId).First(&setting).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		setting = AllocationSetting{
			DivisionId:      divisionId,
			GradeRatios:     gradeJSON,
			SizeCurve:       sizeJSON,
			BaseStockTarget: input.BaseStockTarget,
		}
		if err := db.WithContext(ctx).Create(&setting).Error; err != nil {
			return nil, err
		}
	} else {
		if err := db.WithContext(ctx).Model(&setting).Updates(map[string]interface{}{
			"grade_ratios":      gradeJSON,
			"size_curve":        sizeJSON,
			"base_stock_target": input.BaseStockTarget,
		}).Error; err != nil {
			return nil, err
		}
		setting.GradeRatios = gradeJSON
		setting.SizeCurve = sizeJSON
		setting.BaseStockTarget = input.BaseStockTarget
	}

	if err := InvalidateAllocationConfig(divisionId); err != nil {
		logger := config.GetLogger()
		config.LogError(logger, "models", "UpsertAllocationSetting", "Failed to invalidate settings cache", divisionId, err)
	}
	return &setting, nil
}
