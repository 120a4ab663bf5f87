package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"accountbook/internal/core"
)

const sheetName = "가계부"

var columnWidths = map[string]float64{"A": 12, "B": 8, "C": 30, "D": 15, "E": 14, "F": 12}

// XLSX writes entries to a single-sheet workbook with the CSV columns.
// Amounts are numeric cells so spreadsheet sums work.
func XLSX(entries []core.Entry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for idx, e := range entries {
		r := idx + 2
		amount, _ := e.Amount.Decimal().Float64()
		values := []any{e.Date.String(), e.Type.Label(), e.Description, e.Category, amount, e.PaymentMethod}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, r)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", r, err)
			}
		}
	}

	for col, w := range columnWidths {
		if err := f.SetColWidth(sheetName, col, col, w); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
