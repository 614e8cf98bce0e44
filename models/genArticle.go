package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/allocation_backend/config"
	"github.com/mmdatafocus/allocation_backend/utils"
)

// GenArticle is a sellable style; VariantArticle is one size/color of it.
// Allocation targets variants, grouped per gen article for reporting.
type GenArticle struct {
	ID             int       `gorm:"primary_key" json:"id"`
	GenArticleCode string    `gorm:"size:50;uniqueIndex;not null" json:"gen_article_code" binding:"required"`
	GenArticleName string    `gorm:"size:255" json:"gen_article_name"`
	DivisionId     int       `gorm:"index" json:"division_id"`
	Season         string    `gorm:"size:50;index" json:"season"`
	IsActive       *bool     `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type VariantArticle struct {
	ID           int       `gorm:"primary_key" json:"id"`
	VariantCode  string    `gorm:"size:50;uniqueIndex;not null" json:"variant_code" binding:"required"`
	GenArticleId int       `gorm:"index;not null" json:"gen_article_id" binding:"required"`
	SizeCode     string    `gorm:"size:20" json:"size_code"`
	ColorCode    string    `gorm:"size:20" json:"color_code"`
	IsActive     *bool     `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// EligibleVariant is the flattened variant + gen-article view the engine
// allocates against.
type EligibleVariant struct {
	VariantId      int    `json:"variant_id"`
	VariantCode    string `json:"variant_code"`
	GenArticleId   int    `json:"gen_article_id"`
	GenArticleCode string `json:"gen_article_code"`
	SizeCode       string `json:"size_code"`
	ColorCode      string `json:"color_code"`
}

// GetEligibleVariants resolves the product set for an allocation run.
// Filters are AND-ed; both the variant and its gen article must be active.
func GetEligibleVariants(ctx context.Context, genArticleIds []int, genArticleCodes []string, divisionId int, season string) ([]EligibleVariant, error) {
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).
		Table("variant_articles AS va").
		Select("va.id AS variant_id, va.variant_code, ga.id AS gen_article_id, ga.gen_article_code, va.size_code, va.color_code").
		Joins("JOIN gen_articles ga ON ga.id = va.gen_article_id").
		Where("va.is_active = ? AND ga.is_active = ?", true, true)

	if len(genArticleIds) > 0 {
		dbCtx = dbCtx.Where("ga.id IN ?", utils.UniqueSlice(genArticleIds))
	}
	if len(genArticleCodes) > 0 {
		dbCtx = dbCtx.Where("ga.gen_article_code IN ?", utils.UniqueSlice(genArticleCodes))
	}
	if divisionId > 0 {
		dbCtx = dbCtx.Where("ga.division_id = ?", divisionId)
	}
	if season != "" {
		dbCtx = dbCtx.Where("ga.season = ?", season)
	}

	var variants []EligibleVariant
	if err := dbCtx.Order("ga.gen_article_code, va.variant_code").Scan(&variants).Error; err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, utils.NewBusinessError("no eligible products found for the given filters")
	}
	return variants, nil
}
