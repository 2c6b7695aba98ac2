package schema

import (
	"path/filepath"
	"strings"
)

// Format is the on-disk encoding of the result table.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Column captures the behavior-relevant column fields.
type Column struct {
	Name     string
	Nullable bool
}

// TableContract is the logical schema contract of the exported result table.
type TableContract struct {
	Format  Format
	Columns []Column
}

// Result column names, in export order.
const (
	ColumnTitle          = "Title"
	ColumnCompanyName    = "Company Name"
	ColumnRegisterNumber = "Register Number"
)

// ResultTable returns the fixed result table contract for the given format.
func ResultTable(format Format) TableContract {
	return TableContract{
		Format: format,
		Columns: []Column{
			{Name: ColumnTitle},
			{Name: ColumnCompanyName},
			{Name: ColumnRegisterNumber},
		},
	}
}

// Header returns the column names in export order.
func (c TableContract) Header() []string {
	out := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		out = append(out, col.Name)
	}
	return out
}

// NormalizeFormat resolves an explicit format name, falling back to the
// output path's extension and finally to xlsx.
func NormalizeFormat(raw, path string) Format {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		s = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch s {
	case "csv":
		return FormatCSV
	default:
		return FormatXLSX
	}
}
