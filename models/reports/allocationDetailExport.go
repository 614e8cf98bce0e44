package reports

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/allocation_backend/config"
	"github.com/mmdatafocus/allocation_backend/models"
	"github.com/mmdatafocus/allocation_backend/utils"
	"github.com/xuri/excelize/v2"
)

// BuildAllocationDetailExcel renders an allocation's detail rows as an
// xlsx workbook for merchandisers. Returns the file and a suggested
// download name.
func BuildAllocationDetailExcel(ctx context.Context, allocationId int) (*excelize.File, string, error) {
	db := config.GetDB()

	header, err := utils.FetchSingleModel[models.AllocationHeader](ctx, allocationId)
	if err != nil {
		return nil, "", err
	}

	var details []models.AllocationDetail
	err = db.WithContext(ctx).
		Where("allocation_id = ?", allocationId).
		Order("store_code, gen_article_code, variant_code").
		Find(&details).Error
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()

	f.SetCellValue("Sheet1", "A1", "Allocation Code")
	f.SetCellValue("Sheet1", "B1", header.AllocationCode)
	f.SetCellValue("Sheet1", "C1", "Status")
	f.SetCellValue("Sheet1", "D1", header.Status.String())
	f.SetCellValue("Sheet1", "E1", "Total Qty")
	f.SetCellValue("Sheet1", "F1", header.TotalQty)

	columns := []string{"Store Code", "Store Grade", "Gen Article", "Variant", "Size", "Color", "Allocated Qty", "Override Qty", "Final Qty", "Basis"}
	columnLetters := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}
	for i, col := range columns {
		f.SetCellValue("Sheet1", columnLetters[i]+"3", col)
	}

	for i, d := range details {
		row := fmt.Sprint(i + 4)
		f.SetCellValue("Sheet1", "A"+row, d.StoreCode)
		f.SetCellValue("Sheet1", "B"+row, d.StoreGrade)
		f.SetCellValue("Sheet1", "C"+row, d.GenArticleCode)
		f.SetCellValue("Sheet1", "D"+row, d.VariantCode)
		f.SetCellValue("Sheet1", "E"+row, d.SizeCode)
		f.SetCellValue("Sheet1", "F"+row, d.ColorCode)
		f.SetCellValue("Sheet1", "G"+row, d.AllocatedQty)
		if d.OverrideQty != nil {
			f.SetCellValue("Sheet1", "H"+row, *d.OverrideQty)
		}
		f.SetCellValue("Sheet1", "I"+row, d.FinalQty)
		f.SetCellValue("Sheet1", "J"+row, d.AllocationBasis.String())
	}

	filename := fmt.Sprintf("%s_details.xlsx", header.AllocationCode)
	return f, filename, nil
}
