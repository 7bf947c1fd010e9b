package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"tonkilo/internal/csvio"
)

// ExportTable writes a result table under dir in the requested format,
// using the table's own name for the file. The xlsx format swaps the
// name's extension. Returns the written path.
func ExportTable(t *csvio.Table, dir, format string) (string, error) {
	switch format {
	case "", "csv":
		path := filepath.Join(dir, t.Name)
		return path, ExportTableCSV(t, path)
	case "xlsx":
		name := strings.TrimSuffix(t.Name, filepath.Ext(t.Name)) + ".xlsx"
		path := filepath.Join(dir, name)
		return path, ExportTableXLSX(t, path)
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func ExportTableCSV(t *csvio.Table, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := csvio.WriteCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func ExportTableXLSX(t *csvio.Table, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	for i, h := range t.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range t.Rows {
		for c, value := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
