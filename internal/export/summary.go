// Package export writes an audit spreadsheet of the answers collected for a form.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/a3tai/mcp-form-filler/internal/form"
)

// SheetName is the worksheet holding the answers
const SheetName = "Answers"

// Headers of the answers sheet
var Headers = []string{"Field", "Label", "Type", "Required", "Value"}

// Summary builds the workbook for schema and values. Fields without a value get an empty cell.
func Summary(schema *form.Schema, values map[string]string) (*excelize.File, error) {
	f := excelize.NewFile()
	if index, _ := f.GetSheetIndex(SheetName); index == -1 {
		if _, err := f.NewSheet(SheetName); err != nil {
			return nil, fmt.Errorf("create sheet: %w", err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}
	activeIndex, _ := f.GetSheetIndex(SheetName)
	f.SetActiveSheet(activeIndex)

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	for i, fld := range schema.Fields() {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}
		write(1, fld.ID)
		write(2, fld.Label)
		write(3, string(fld.Type))
		write(4, yesNo(fld.Required))
		if v := values[fld.ID]; v != "" {
			write(5, v)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 12)
	_ = f.SetColWidth(SheetName, "B", "B", 32)
	_ = f.SetColWidth(SheetName, "C", "D", 12)
	_ = f.SetColWidth(SheetName, "E", "E", 48)
	return f, nil
}

// WriteSummary writes the answers workbook to w
func WriteSummary(w io.Writer, schema *form.Schema, values map[string]string) error {
	f, err := Summary(schema, values)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
