package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"regdesk/internal/model"
)

//go:embed templates/table.html
var templates embed.FS

var tableTmpl = template.Must(template.ParseFS(templates, "templates/table.html"))

// Links used by the rendered page. RecordsURL must end with a slash; the
// row's payment reference is appended for PUT and DELETE.
type Links struct {
	RecordsURL     string
	SpreadsheetURL string
	CSVURL         string
}

var DefaultLinks = Links{
	RecordsURL:     "/v1/registrations/",
	SpreadsheetURL: "/v1/export/spreadsheet",
	CSVURL:         "/v1/export/csv",
}

type tableCell struct {
	Key      string
	Value    string
	ReadOnly bool
}

type tableRow struct {
	Ref   string
	Cells []tableCell
}

type tablePage struct {
	Links
	Columns []column
	Rows    []tableRow
	ColSpan int
}

// RenderTable renders records, in the given order, as the editable organizer view.
func RenderTable(records []model.Registration, links Links) ([]byte, error) {
	page := tablePage{
		Links:   links,
		Columns: columns,
		Rows:    make([]tableRow, 0, len(records)),
		ColSpan: len(columns) + 1,
	}
	for i := range records {
		values := row(&records[i])
		cells := make([]tableCell, len(columns))
		for j, c := range columns {
			cells[j] = tableCell{Key: c.Key, Value: values[j], ReadOnly: c.ReadOnly}
		}
		page.Rows = append(page.Rows, tableRow{Ref: records[i].PaymentReference, Cells: cells})
	}

	var buf bytes.Buffer
	if err := tableTmpl.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("failed to render table: %w", err)
	}
	return buf.Bytes(), nil
}
