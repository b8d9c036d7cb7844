// Package report renders tabular results (export items, evaluation scores) as XLSX workbooks.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet: a header row followed by data rows.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]any
	// Widths maps a column letter to its width.
	Widths map[string]float64
}

// Workbook builds an XLSX workbook holding sheets in order and returns its bytes.
func Workbook(sheets ...Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx: no sheets")
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			// reuse the default sheet so the workbook has no empty first tab
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return nil, err
		}
		if err := writeSheet(f, s); err != nil {
			return nil, fmt.Errorf("xlsx sheet %s: %w", s.Name, err)
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheets[0].Name)
	f.SetActiveSheet(activeIndex)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes the workbook to path, creating parent directories.
func WriteFile(path string, sheets ...Sheet) error {
	data, err := Workbook(sheets...)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeSheet(f *excelize.File, s Sheet) error {
	for i, h := range s.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(s.Name, cell, h); err != nil {
			return err
		}
	}
	for r, row := range s.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(s.Name, cell, truncate(v, 32000)); err != nil {
				return err
			}
		}
	}
	for col, w := range s.Widths {
		_ = f.SetColWidth(s.Name, col, col, w)
	}
	return nil
}

// truncate shortens long strings below the XLSX cell limit.
func truncate(v any, n int) any {
	s, ok := v.(string)
	if !ok || len(s) <= n {
		return v
	}
	return s[:n-1] + "…"
}
