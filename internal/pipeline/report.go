package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"wei/internal"
)

// ExportOutcomesToXLSX writes the batch report: one row per input
// document.
func ExportOutcomesToXLSX(outcomes []internal.DocumentOutcome, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"file", "status", "reason", "style", "supplier", "agent",
		"delivery_date", "tasks", "retries",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, outcome := range outcomes {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, filepath.Base(outcome.Source))
		set(2, string(outcome.Status))
		set(3, outcome.Reason)
		set(4, outcome.Style)
		set(5, outcome.Supplier)
		set(6, outcome.Agent)
		set(7, outcome.DeliveryDate)
		set(8, outcome.TaskCount)
		set(9, outcome.RetryCount)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
