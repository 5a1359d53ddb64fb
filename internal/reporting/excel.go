package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/tradecraft-labs/execution-engine/internal/twap"
)

// ExcelReporter exports execution runs to workbooks for offline review.
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter.
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// WriteExecutionXLSX writes one TWAP run to an Excel file with a summary
// sheet and the full slice ledger.
func (r *ExcelReporter) WriteExecutionXLSX(summary twap.Summary, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Summary"
	const slicesSheet = "Slices"

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	fx.NewSheet(slicesSheet)

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return err
	}

	if err := r.writeSummarySheet(fx, summarySheet, summary, headerStyle); err != nil {
		return err
	}
	if err := r.writeSlicesSheet(fx, slicesSheet, summary, headerStyle); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, s twap.Summary, headerStyle int) error {
	rows := [][]interface{}{
		{"Order ID", s.OrderID},
		{"Symbol", s.Symbol},
		{"Requested Notional", s.RequestedNotional},
		{"Executed Notional", s.ExecutedNotional},
		{"Remaining Notional", s.RemainingNotional},
		{"Slices Planned", s.SlicesPlanned},
		{"Slices Executed", s.SlicesExecuted},
		{"Duration", s.Duration.String()},
	}

	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if err := fx.SetColWidth(sheet, "A", "A", 22); err != nil {
		return err
	}
	return fx.SetColWidth(sheet, "B", "B", 30)
}

func (r *ExcelReporter) writeSlicesSheet(fx *excelize.File, sheet string, s twap.Summary, headerStyle int) error {
	header := []interface{}{"Slice", "Status", "Requested", "Actual", "Price", "Units", "Reason", "Timestamp"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := fx.SetCellStyle(sheet, "A1", "H1", headerStyle); err != nil {
		return err
	}

	for i, rec := range s.Slices {
		row := []interface{}{
			rec.Slice,
			string(rec.Status),
			rec.Requested,
			rec.Actual,
			rec.Price,
			rec.Units,
			rec.Reason,
			rec.Timestamp.Format("2006-01-02 15:04:05"),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	return fx.SetColWidth(sheet, "A", "H", 16)
}
