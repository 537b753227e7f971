package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"regdesk/internal/model"
)

const (
	CSVFilename    = "registrations.csv"
	CSVContentType = "text/csv; charset=utf-8"
)

// RenderCSV prefixes a UTF-8 BOM so spreadsheet tools pick the right encoding.
func RenderCSV(records []model.Registration) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\xEF\xBB\xBF")

	w := csv.NewWriter(&buf)
	if err := w.Write(Headers()); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for i := range records {
		if err := w.Write(row(&records[i])); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
