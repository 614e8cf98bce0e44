package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/allocation_backend/config"
	"github.com/mmdatafocus/allocation_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const DefaultWarehouseCode = "WH001"

const defaultSalesLookbackDays = 30

type AllocationHeader struct {
	ID             int              `gorm:"primary_key" json:"id"`
	AllocationCode string           `gorm:"size:50;uniqueIndex;not null" json:"allocation_code"`
	AllocationName string           `gorm:"size:255;not null" json:"allocation_name"`
	AllocationType AllocationType   `gorm:"type:enum('Initial','Replenishment','Transfer');index" json:"allocation_type"`
	DivisionId     int              `gorm:"index" json:"division_id"`
	Season         string           `gorm:"size:50" json:"season"`
	WarehouseCode  string           `gorm:"size:50;index;not null" json:"warehouse_code"`
	Status         AllocationStatus `gorm:"type:enum('Draft','InProgress','Approved','Executed','Cancelled');index;not null" json:"status"`
	TotalQty       int              `gorm:"not null;default:0" json:"total_qty"`
	TotalStores    int              `gorm:"not null;default:0" json:"total_stores"`
	TotalOptions   int              `gorm:"not null;default:0" json:"total_options"`
	CreatedBy      string           `gorm:"size:100" json:"created_by"`
	ApprovedBy     *string          `gorm:"size:100" json:"approved_by"`
	ExecutedAt     *time.Time       `gorm:"index" json:"executed_at"`
	CreatedAt      time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (h AllocationHeader) GetId() int {
	return h.ID
}

func (h AllocationHeader) GetCursor() string {
	return h.CreatedAt.Format("2006-01-02 15:04:05")
}

type AllocationDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	AllocationId    int             `gorm:"index;not null;index:idx_detail_lookup,priority:1" json:"allocation_id"`
	StoreCode       string          `gorm:"size:50;not null;index:idx_detail_lookup,priority:2" json:"store_code"`
	StoreGrade      string          `gorm:"size:10" json:"store_grade"`
	GenArticleId    int             `gorm:"index" json:"gen_article_id"`
	GenArticleCode  string          `gorm:"size:50" json:"gen_article_code"`
	VariantId       int             `gorm:"index" json:"variant_id"`
	VariantCode     string          `gorm:"size:50;not null;index:idx_detail_lookup,priority:3" json:"variant_code"`
	SizeCode        string          `gorm:"size:20" json:"size_code"`
	ColorCode       string          `gorm:"size:20" json:"color_code"`
	AllocatedQty    int             `gorm:"not null;default:0" json:"allocated_qty"`
	OverrideQty     *int            `json:"override_qty"`
	FinalQty        int             `gorm:"not null;default:0" json:"final_qty"`
	AllocationBasis AllocationBasis `gorm:"type:enum('RATIO','SALES','SALES_FALLBACK','STOCK','MANUAL')" json:"allocation_basis"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewAllocation is the run request. Store and product filters are AND-ed;
// empty filters mean "all active". Ratio/curve maps override the division
// settings for this run only.
type NewAllocation struct {
	AllocationName    string             `json:"allocation_name" binding:"required"`
	AllocationType    AllocationType     `json:"allocation_type" binding:"required"`
	Basis             AllocationBasis    `json:"basis"`
	CreatedBy         string             `json:"created_by"`
	DivisionId        int                `json:"division_id"`
	Season            string             `json:"season"`
	WarehouseCode     string             `json:"warehouse_code"`
	GenArticleIds     []int              `json:"gen_article_ids"`
	GenArticleCodes   []string           `json:"gen_article_codes"`
	StoreCodes        []string           `json:"store_codes"`
	StoreGrades       []string           `json:"store_grades"`
	GradeRatios       map[string]float64 `json:"grade_ratios"`
	SizeCurve         map[string]float64 `json:"size_curve"`
	BaseStockTarget   *int               `json:"base_stock_target"`
	PerStoreMin       *int               `json:"per_store_min"`
	PerStoreMax       *int               `json:"per_store_max"`
	TotalQtyLimit     *int               `json:"total_qty_limit"`
	SalesLookbackDays int                `json:"sales_lookback_days"`
}

type AllocationRunResult struct {
	AllocationId   int              `json:"allocation_id"`
	AllocationCode string           `json:"allocation_code"`
	Status         AllocationStatus `json:"status"`
	TotalQty       int              `json:"total_qty"`
	TotalStores    int              `json:"total_stores"`
	TotalOptions   int              `json:"total_options"`
	DurationMs     int64            `json:"duration_ms"`
}

func GenerateAllocationCode() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ALLOC_%s_%s", time.Now().Format("20060102"), suffix)
}

// RunAllocation creates a header, computes the distribution and persists
// the result. The header is committed up front as InProgress so a crashed
// or failed run stays visible; any failure after that flips it to
// Cancelled. A run that survives the pipeline lands in Draft, even with
// zero rows.
func RunAllocation(ctx context.Context, input NewAllocation) (*AllocationRunResult, error) {
	start := time.Now()
	db := config.GetDB()
	logger := config.GetLogger()

	if strings.TrimSpace(input.AllocationName) == "" {
		return nil, utils.NewBusinessError("allocation name is required")
	}
	if !input.AllocationType.IsValid() {
		return nil, utils.NewBusinessError(fmt.Sprintf("%s is not a valid allocation type", input.AllocationType))
	}
	basis := input.Basis
	if basis == "" {
		basis = AllocationBasisRatio
	}
	if !basis.IsRunnable() {
		return nil, utils.NewBusinessError(fmt.Sprintf("%s cannot be requested as a run basis", basis))
	}
	for name, v := range map[string]*int{
		"per_store_min":   input.PerStoreMin,
		"per_store_max":   input.PerStoreMax,
		"total_qty_limit": input.TotalQtyLimit,
	} {
		if v != nil && *v < 0 {
			return nil, utils.NewBusinessError(fmt.Sprintf("%s must not be negative", name))
		}
	}
	warehouseCode := input.WarehouseCode
	if warehouseCode == "" {
		warehouseCode = DefaultWarehouseCode
	}
	lookbackDays := input.SalesLookbackDays
	if lookbackDays <= 0 {
		lookbackDays = defaultSalesLookbackDays
	}

	header := AllocationHeader{
		AllocationCode: GenerateAllocationCode(),
		AllocationName: input.AllocationName,
		AllocationType: input.AllocationType,
		DivisionId:     input.DivisionId,
		Season:         input.Season,
		WarehouseCode:  warehouseCode,
		Status:         AllocationStatusInProgress,
		CreatedBy:      input.CreatedBy,
	}
	if err := db.WithContext(ctx).Create(&header).Error; err != nil {
		return nil, err
	}

	if err := runAllocationPipeline(ctx, &header, input, basis, lookbackDays); err != nil {
		cancelFailedRun(ctx, &header, err)
		return nil, err
	}

	saveAllocationHistory(ctx, HistoryActionCreate, header.ID, nil, header,
		fmt.Sprintf("Allocation %s (%s, basis %s) created: %d units across %d stores, %d options",
			header.AllocationCode, header.AllocationType, basis, header.TotalQty, header.TotalStores, header.TotalOptions),
		header.CreatedBy)

	logger.WithFields(logrus.Fields{
		"allocation_code": header.AllocationCode,
		"basis":           basis,
		"total_qty":       header.TotalQty,
		"total_stores":    header.TotalStores,
		"total_options":   header.TotalOptions,
		"duration_ms":     time.Since(start).Milliseconds(),
	}).Info("allocation run completed")

	return &AllocationRunResult{
		AllocationId:   header.ID,
		AllocationCode: header.AllocationCode,
		Status:         header.Status,
		TotalQty:       header.TotalQty,
		TotalStores:    header.TotalStores,
		TotalOptions:   header.TotalOptions,
		DurationMs:     time.Since(start).Milliseconds(),
	}, nil
}

// runAllocationPipeline does eligibility -> supply -> strategy ->
// constraints -> warehouse cap -> persist, holding the warehouse advisory
// lock from the supply read through commit so parallel runs against the
// same warehouse cannot overcommit.
func runAllocationPipeline(ctx context.Context, header *AllocationHeader, input NewAllocation, basis AllocationBasis, lookbackDays int) error {
	db := config.GetDB()

	stores, err := GetEligibleStores(ctx, input.StoreCodes, input.StoreGrades, input.DivisionId)
	if err != nil {
		return err
	}
	variants, err := GetEligibleVariants(ctx, input.GenArticleIds, input.GenArticleCodes, input.DivisionId, input.Season)
	if err != nil {
		return err
	}

	storeCodes := make([]string, len(stores))
	for i, s := range stores {
		storeCodes[i] = s.StoreCode
	}
	variantCodes := make([]string, len(variants))
	for i, v := range variants {
		variantCodes[i] = v.VariantCode
	}

	cfg, err := GetAllocationConfig(ctx, input.DivisionId)
	if err != nil {
		return err
	}
	if len(input.GradeRatios) > 0 {
		cfg.GradeRatios = floatMapToDecimal(input.GradeRatios)
	}
	if len(input.SizeCurve) > 0 {
		cfg.SizeCurve = floatMapToDecimal(input.SizeCurve)
	}
	if input.BaseStockTarget != nil && *input.BaseStockTarget > 0 {
		cfg.BaseStockTarget = *input.BaseStockTarget
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := AcquireWarehouseAllocationLock(tx, header.WarehouseCode); err != nil {
		tx.Rollback()
		return err
	}

	supply, err := GetWarehouseAvailability(tx, header.WarehouseCode, variantCodes)
	if err != nil {
		tx.Rollback()
		return err
	}

	var rows []CandidateRow
	switch basis {
	case AllocationBasisSales:
		since := time.Now().AddDate(0, 0, -lookbackDays)
		sales, serr := GetStoreSalesTotals(tx, variantCodes, storeCodes, since)
		if serr != nil {
			tx.Rollback()
			return serr
		}
		rows = AllocateBySales(stores, variants, supply, sales, cfg)
	case AllocationBasisStock:
		storeStock, serr := GetStoreStockLevels(tx, variantCodes, storeCodes)
		if serr != nil {
			tx.Rollback()
			return serr
		}
		rows = AllocateByStock(stores, variants, supply, storeStock, cfg)
	default:
		rows = AllocateByRatio(stores, variants, supply, cfg)
	}

	rows = ApplyConstraints(rows, input.PerStoreMin, input.PerStoreMax, input.TotalQtyLimit)
	rows = CapAtWarehouse(rows, supply)

	details := make([]AllocationDetail, 0, len(rows))
	totalQty := 0
	storeSet := make(map[string]bool)
	variantSet := make(map[string]bool)
	for _, r := range rows {
		details = append(details, AllocationDetail{
			AllocationId:    header.ID,
			StoreCode:       r.StoreCode,
			StoreGrade:      r.StoreGrade,
			GenArticleId:    r.GenArticleId,
			GenArticleCode:  r.GenArticleCode,
			VariantId:       r.VariantId,
			VariantCode:     r.VariantCode,
			SizeCode:        r.SizeCode,
			ColorCode:       r.ColorCode,
			AllocatedQty:    r.Qty,
			FinalQty:        r.Qty,
			AllocationBasis: r.Basis,
		})
		totalQty += r.Qty
		storeSet[r.StoreCode] = true
		variantSet[r.VariantCode] = true
	}

	if len(details) > 0 {
		if err := tx.CreateInBatches(&details, 500).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Model(&AllocationHeader{}).Where("id = ?", header.ID).Updates(map[string]interface{}{
		"status":        AllocationStatusDraft,
		"total_qty":     totalQty,
		"total_stores":  len(storeSet),
		"total_options": len(variantSet),
	}).Error; err != nil {
		tx.Rollback()
		return err
	}

	ReleaseWarehouseAllocationLock(tx, header.WarehouseCode)
	if err := tx.Commit().Error; err != nil {
		return err
	}

	header.Status = AllocationStatusDraft
	header.TotalQty = totalQty
	header.TotalStores = len(storeSet)
	header.TotalOptions = len(variantSet)
	return nil
}

// cancelFailedRun flips the already-committed header to Cancelled.
// Best-effort: the run's own error is what the caller sees.
func cancelFailedRun(ctx context.Context, header *AllocationHeader, cause error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := db.WithContext(ctx).Model(&AllocationHeader{}).Where("id = ?", header.ID).
		Update("status", AllocationStatusCancelled).Error; err != nil {
		config.LogError(logger, "models", "cancelFailedRun", "Failed to cancel allocation header", header.ID, err)
		return
	}
	header.Status = AllocationStatusCancelled
	saveAllocationHistory(ctx, HistoryActionCancel, header.ID, nil, header,
		fmt.Sprintf("Allocation %s cancelled: run failed (%s)", header.AllocationCode, cause.Error()),
		header.CreatedBy)
}

type AllocationOverrideInput struct {
	StoreCode   string `json:"store_code"`
	VariantCode string `json:"variant_code"`
	OverrideQty *int   `json:"override_qty"`
}

type OverrideResult struct {
	AllocationId int `json:"allocation_id"`
	Applied      int `json:"applied"`
	Skipped      int `json:"skipped"`
	TotalQty     int `json:"total_qty"`
}

// ApplyAllocationOverrides sets manual quantities on existing detail rows.
// Incomplete entries and rows that do not exist are skipped, not errors;
// a negative quantity rejects the whole batch. The header total is
// recomputed from final quantities in the same transaction.
func ApplyAllocationOverrides(ctx context.Context, allocationId int, overrides []AllocationOverrideInput, changedBy string) (*OverrideResult, error) {
	db := config.GetDB()

	header, err := utils.FetchSingleModel[AllocationHeader](ctx, allocationId)
	if err != nil {
		return nil, err
	}
	if header.Status != AllocationStatusDraft && header.Status != AllocationStatusInProgress {
		return nil, utils.NewBusinessError(fmt.Sprintf("overrides are only allowed while Draft or InProgress (current: %s)", header.Status))
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	applied, skipped := 0, 0
	for _, o := range overrides {
		if o.StoreCode == "" || o.VariantCode == "" || o.OverrideQty == nil {
			skipped++
			continue
		}
		if *o.OverrideQty < 0 {
			tx.Rollback()
			return nil, utils.NewBusinessError(fmt.Sprintf("override qty must not be negative (store=%s variant=%s)", o.StoreCode, o.VariantCode))
		}

		var detail AllocationDetail
		err := tx.Where("allocation_id = ? AND store_code = ? AND variant_code = ?", allocationId, o.StoreCode, o.VariantCode).
			First(&detail).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				skipped++
				continue
			}
			tx.Rollback()
			return nil, err
		}

		if err := tx.Model(&AllocationDetail{}).Where("id = ?", detail.ID).Updates(map[string]interface{}{
			"override_qty": *o.OverrideQty,
			"final_qty":    *o.OverrideQty,
		}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		applied++
	}

	var totalQty int
	if err := tx.Model(&AllocationDetail{}).Where("allocation_id = ?", allocationId).
		Select("COALESCE(SUM(final_qty), 0)").Scan(&totalQty).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Model(&AllocationHeader{}).Where("id = ?", allocationId).
		Update("total_qty", totalQty).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	saveAllocationHistory(ctx, HistoryActionOverride, allocationId, header, nil,
		fmt.Sprintf("Applied %d overrides (%d skipped), new total %d", applied, skipped, totalQty),
		changedBy)

	return &OverrideResult{
		AllocationId: allocationId,
		Applied:      applied,
		Skipped:      skipped,
		TotalQty:     totalQty,
	}, nil
}

func ApproveAllocation(ctx context.Context, allocationId int, approvedBy string) (*AllocationHeader, error) {
	db := config.GetDB()

	header, err := utils.FetchSingleModel[AllocationHeader](ctx, allocationId)
	if err != nil {
		return nil, err
	}
	if !header.Status.CanTransition(AllocationStatusApproved) {
		return nil, utils.NewBusinessError(fmt.Sprintf("only Draft allocations can be approved (current: %s)", header.Status))
	}

	oldHeader := *header
	if err := db.WithContext(ctx).Model(&AllocationHeader{}).Where("id = ?", allocationId).Updates(map[string]interface{}{
		"status":      AllocationStatusApproved,
		"approved_by": approvedBy,
	}).Error; err != nil {
		return nil, err
	}
	header.Status = AllocationStatusApproved
	header.ApprovedBy = &approvedBy

	saveAllocationHistory(ctx, HistoryActionApprove, allocationId, oldHeader, header,
		fmt.Sprintf("Allocation %s approved", header.AllocationCode), approvedBy)

	return header, nil
}

// ExecuteAllocation marks the allocation executed and queues the
// warehouse-dispatch event in the same transaction. After this the
// allocation is immutable.
func ExecuteAllocation(ctx context.Context, allocationId int, executedBy string) (*AllocationHeader, error) {
	db := config.GetDB()

	header, err := utils.FetchSingleModel[AllocationHeader](ctx, allocationId)
	if err != nil {
		return nil, err
	}
	if !header.Status.CanTransition(AllocationStatusExecuted) {
		return nil, utils.NewBusinessError(fmt.Sprintf("only Approved allocations can be executed (current: %s)", header.Status))
	}

	oldHeader := *header
	now := time.Now()
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	if err := tx.Model(&AllocationHeader{}).Where("id = ?", allocationId).Updates(map[string]interface{}{
		"status":      AllocationStatusExecuted,
		"executed_at": now,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	header.Status = AllocationStatusExecuted
	header.ExecutedAt = &now

	var details []AllocationDetail
	if err := tx.Where("allocation_id = ?", allocationId).Order("store_code, variant_code").Find(&details).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := QueueWarehouseDispatch(tx, header, details, correlationId); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	saveAllocationHistory(ctx, HistoryActionExecute, allocationId, oldHeader, header,
		fmt.Sprintf("Allocation %s executed with %d units", header.AllocationCode, header.TotalQty), executedBy)

	return header, nil
}

func CancelAllocation(ctx context.Context, allocationId int, cancelledBy string, reason string) (*AllocationHeader, error) {
	db := config.GetDB()

	header, err := utils.FetchSingleModel[AllocationHeader](ctx, allocationId)
	if err != nil {
		return nil, err
	}
	if !header.Status.CanTransition(AllocationStatusCancelled) {
		if header.Status == AllocationStatusExecuted {
			return nil, utils.NewBusinessError("executed allocations cannot be cancelled")
		}
		return nil, utils.NewBusinessError("allocation is already cancelled")
	}

	oldHeader := *header
	if err := db.WithContext(ctx).Model(&AllocationHeader{}).Where("id = ?", allocationId).
		Update("status", AllocationStatusCancelled).Error; err != nil {
		return nil, err
	}
	header.Status = AllocationStatusCancelled

	description := fmt.Sprintf("Allocation %s cancelled", header.AllocationCode)
	if reason != "" {
		description = fmt.Sprintf("%s: %s", description, reason)
	}
	saveAllocationHistory(ctx, HistoryActionCancel, allocationId, oldHeader, header, description, cancelledBy)

	return header, nil
}

type AllocationDetailPage struct {
	AllocationId int                 `json:"allocation_id"`
	Details      []*AllocationDetail `json:"details"`
	Total        int64               `json:"total"`
	Page         int                 `json:"page"`
	PageSize     int                 `json:"page_size"`
}

// GetAllocationDetails pages through detail rows with optional store and
// size filters.
func GetAllocationDetails(ctx context.Context, allocationId int, page int, pageSize int, storeCode *string, sizeCode *string) (*AllocationDetailPage, error) {
	db := config.GetDB()

	if _, err := utils.FetchSingleModel[AllocationHeader](ctx, allocationId); err != nil {
		return nil, err
	}

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	if pageSize > 500 {
		pageSize = 500
	}

	applyFilters := func(dbCtx *gorm.DB) *gorm.DB {
		dbCtx = dbCtx.Where("allocation_id = ?", allocationId)
		if storeCode != nil && *storeCode != "" {
			dbCtx = dbCtx.Where("store_code = ?", *storeCode)
		}
		if sizeCode != nil && *sizeCode != "" {
			dbCtx = dbCtx.Where("size_code = ?", *sizeCode)
		}
		return dbCtx
	}

	var total int64
	if err := applyFilters(db.WithContext(ctx).Model(&AllocationDetail{})).Count(&total).Error; err != nil {
		return nil, err
	}

	var details []*AllocationDetail
	err := applyFilters(db.WithContext(ctx)).
		Order("store_code, variant_code").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&details).Error
	if err != nil {
		return nil, err
	}

	return &AllocationDetailPage{
		AllocationId: allocationId,
		Details:      details,
		Total:        total,
		Page:         page,
		PageSize:     pageSize,
	}, nil
}

type StoreQtySummary struct {
	StoreCode string `json:"store_code"`
	TotalQty  int    `json:"total_qty"`
}

type AllocationSummary struct {
	AllocationId   int               `json:"allocation_id"`
	AllocationCode string            `json:"allocation_code"`
	Status         AllocationStatus  `json:"status"`
	TotalQty       int               `json:"total_qty"`
	TotalStores    int               `json:"total_stores"`
	TotalVariants  int               `json:"total_variants"`
	QtyByGrade     map[string]int    `json:"qty_by_grade"`
	QtyBySize      map[string]int    `json:"qty_by_size"`
	QtyByColor     map[string]int    `json:"qty_by_color"`
	TopStores      []StoreQtySummary `json:"top_stores"`
}

func sumDetailQtyBy(ctx context.Context, allocationId int, column string) (map[string]int, error) {
	type kvRow struct {
		K string
		V int
	}
	db := config.GetDB()
	var rows []kvRow
	err := db.WithContext(ctx).Model(&AllocationDetail{}).
		Select(column+" AS k, COALESCE(SUM(final_qty), 0) AS v").
		Where("allocation_id = ?", allocationId).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.K] = r.V
	}
	return out, nil
}

// GetAllocationSummary derives grade/size/color breakdowns and the top-10
// stores from detail rows. Always computed on read, never stored.
func GetAllocationSummary(ctx context.Context, allocationId int) (*AllocationSummary, error) {
	db := config.GetDB()

	header, err := utils.FetchSingleModel[AllocationHeader](ctx, allocationId)
	if err != nil {
		return nil, err
	}

	type totalsRow struct {
		TotalQty      int
		TotalStores   int
		TotalVariants int
	}
	var totals totalsRow
	err = db.WithContext(ctx).Model(&AllocationDetail{}).
		Select("COALESCE(SUM(final_qty), 0) AS total_qty, COUNT(DISTINCT store_code) AS total_stores, COUNT(DISTINCT variant_code) AS total_variants").
		Where("allocation_id = ?", allocationId).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}

	byGrade, err := sumDetailQtyBy(ctx, allocationId, "store_grade")
	if err != nil {
		return nil, err
	}
	bySize, err := sumDetailQtyBy(ctx, allocationId, "size_code")
	if err != nil {
		return nil, err
	}
	byColor, err := sumDetailQtyBy(ctx, allocationId, "color_code")
	if err != nil {
		return nil, err
	}

	var topStores []StoreQtySummary
	err = db.WithContext(ctx).Model(&AllocationDetail{}).
		Select("store_code, COALESCE(SUM(final_qty), 0) AS total_qty").
		Where("allocation_id = ?", allocationId).
		Group("store_code").
		Order("total_qty DESC").
		Limit(10).
		Scan(&topStores).Error
	if err != nil {
		return nil, err
	}

	return &AllocationSummary{
		AllocationId:   allocationId,
		AllocationCode: header.AllocationCode,
		Status:         header.Status,
		TotalQty:       totals.TotalQty,
		TotalStores:    totals.TotalStores,
		TotalVariants:  totals.TotalVariants,
		QtyByGrade:     byGrade,
		QtyBySize:      bySize,
		QtyByColor:     byColor,
		TopStores:      topStores,
	}, nil
}

// PaginateAllocationHeaders lists headers newest first with cursor paging.
func PaginateAllocationHeaders(ctx context.Context, limit *int, after *string, status *AllocationStatus, allocationType *AllocationType) ([]Edge[AllocationHeader], *PageInfo, error) {
	l := utils.DereferencePtr(limit, 20)
	if l <= 0 {
		l = 20
	}
	if l > 100 {
		l = 100
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&AllocationHeader{})
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if allocationType != nil && *allocationType != "" {
		dbCtx = dbCtx.Where("allocation_type = ?", *allocationType)
	}

	return FetchPageCompositeCursor[AllocationHeader](dbCtx, l, after, "created_at", "<")
}
