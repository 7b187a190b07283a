package report

import (
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ReportConfig is the subset of the configuration schema the local renderer
// understands. The server-side renderer accepts more; this covers the
// common sheets-of-rows shape.
type ReportConfig struct {
	Title  string        `json:"title,omitempty"`
	Sheets []SheetConfig `json:"sheets"`
}

// SheetConfig is one worksheet: a name and a grid of cell values.
type SheetConfig struct {
	Name    string  `json:"name"`
	Headers []any   `json:"headers,omitempty"`
	Rows    [][]any `json:"rows"`
}

// LocalRenderer writes a report configuration to an .xlsx on disk. It is
// the fallback used when the async render endpoint is unavailable; the
// produced artifact matches the server's for the supported shape.
type LocalRenderer struct {
	warnings []string
}

// Warnings returns the non-fatal issues found during the last Render.
func (r *LocalRenderer) Warnings() []string {
	if r.warnings == nil {
		return []string{}
	}
	return r.warnings
}

// Render decodes config and writes the workbook to path.
func (r *LocalRenderer) Render(config json.RawMessage, path string) error {
	r.warnings = nil

	var cfg ReportConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("decode report config: %w", err)
	}
	if len(cfg.Sheets) == 0 {
		return fmt.Errorf("report config has no sheets")
	}

	wb := excelize.NewFile()
	defer wb.Close()

	for i, sheet := range cfg.Sheets {
		name := sheet.Name
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
			r.warn("sheet %d has no name, using %q", i+1, name)
		}

		if i == 0 {
			if err := wb.SetSheetName(wb.GetSheetName(0), name); err != nil {
				return fmt.Errorf("name sheet %q: %w", name, err)
			}
		} else {
			if _, err := wb.NewSheet(name); err != nil {
				return fmt.Errorf("create sheet %q: %w", name, err)
			}
		}

		rowOffset := 1
		if len(sheet.Headers) > 0 {
			if err := writeRow(wb, name, 1, sheet.Headers); err != nil {
				return err
			}
			rowOffset = 2
		}
		if len(sheet.Rows) == 0 {
			r.warn("sheet %q has no rows", name)
		}
		for rowIdx, row := range sheet.Rows {
			if err := writeRow(wb, name, rowOffset+rowIdx, row); err != nil {
				return err
			}
		}
	}

	if err := wb.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeRow(wb *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d of %q: %w", row, sheet, err)
	}
	if err := wb.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d of %q: %w", row, sheet, err)
	}
	return nil
}

func (r *LocalRenderer) warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}
