package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"nfce/internal"
)

var exportHeaders = []string{
	"receipt_id", "access_key", "issued_at", "store", "receipt_name", "receipt_total",
	"line_no", "item", "quantity", "unit", "weight", "unit_price", "line_total", "category",
}

// ExportReceiptsToXLSX writes one row per item, repeating the receipt header
// columns on every line.
func ExportReceiptsToXLSX(rows []internal.ReceiptExportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "itens"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.ReceiptID)
		set(2, row.AccessKey)
		set(3, derefString(row.IssuedAt))
		set(4, derefString(row.StoreName))
		set(5, row.ReceiptName)
		set(6, row.Total)
		set(7, row.LineNo)
		set(8, row.ItemName)
		set(9, row.Quantity)
		set(10, derefString(row.Unit))
		set(11, derefFloat(row.Weight))
		set(12, row.UnitPrice)
		set(13, derefFloat(row.LineTotal))
		set(14, derefString(row.Category))
	}

	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
