package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"regdesk/internal/model"
)

const (
	SheetName              = "Registrations"
	SpreadsheetFilename    = "registrations.xlsx"
	SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// RenderSpreadsheet writes one header row followed by one row per record.
func RenderSpreadsheet(records []model.Registration) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := setRow(f, 1, Headers()); err != nil {
		return nil, err
	}
	for i := range records {
		if err := setRow(f, i+2, row(&records[i])); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write spreadsheet: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, n int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", n, err)
	}
	return nil
}

// WriteSpreadsheetFile replaces the file at path with a fresh export.
func WriteSpreadsheetFile(path string, records []model.Registration) error {
	data, err := RenderSpreadsheet(records)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.xlsx")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
