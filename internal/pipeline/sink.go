// Package pipeline collects recorded result rows and exports them as the
// result table.
package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shpitdev/impressum-resolver/internal/resolve"
	"github.com/shpitdev/impressum-resolver/pkg/pipeline/core"
	"github.com/shpitdev/impressum-resolver/pkg/pipeline/schema"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Sheet1"

// Sink accumulates rows in arrival order. It is not safe for concurrent
// use; resolve.Pipeline.Run records from a single goroutine.
type Sink struct {
	rows []resolve.ResultRow
}

func (s *Sink) Record(row resolve.ResultRow) {
	s.rows = append(s.rows, row)
}

// Rows returns a copy of the recorded rows.
func (s *Sink) Rows() []resolve.ResultRow {
	return append([]resolve.ResultRow(nil), s.rows...)
}

func (s *Sink) Len() int { return len(s.rows) }

// Flush writes every recorded row to path. An empty format is inferred from
// the extension.
func (s *Sink) Flush(ctx context.Context, path, format string) error {
	f := File{Path: path, Format: schema.NormalizeFormat(format, path)}
	return f.Store(ctx, s.rows)
}

// File writes the result table to a local file, replacing it atomically.
type File struct {
	Path   string
	Format schema.Format
}

var _ core.OutputAdapter[resolve.ResultRow] = File{}

func (f File) Store(ctx context.Context, rows []resolve.ResultRow) error {
	if strings.TrimSpace(f.Path) == "" {
		return fmt.Errorf("output path is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	switch f.Format {
	case schema.FormatCSV:
		err = WriteCSV(tmp, rows)
	default:
		err = WriteXLSX(tmp, rows)
	}
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replace %s: %w", f.Path, err)
	}
	return nil
}

func record(r resolve.ResultRow) []string {
	return []string{r.Title, r.LegalName, r.RegisterNumber}
}

// WriteCSV writes rows as a CSV with the result table header.
func WriteCSV(w io.Writer, rows []resolve.ResultRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(schema.ResultTable(schema.FormatCSV).Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes rows as a single-sheet workbook with the result table header.
func WriteXLSX(w io.Writer, rows []resolve.ResultRow) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	header := schema.ResultTable(schema.FormatXLSX).Header()
	if err := setRow(f, 1, header); err != nil {
		return err
	}
	for i, r := range rows {
		if err := setRow(f, i+2, record(r)); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func setRow(f *excelize.File, rowNum int, vals []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	row := make([]any, len(vals))
	for i, v := range vals {
		row[i] = v
	}
	return f.SetSheetRow(sheetName, cell, &row)
}

// ReadCSV reads a result table written by WriteCSV. Extra columns are ignored.
func ReadCSV(r io.Reader) ([]resolve.ResultRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range schema.ResultTable(schema.FormatCSV).Header() {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	var rows []resolve.ResultRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		get := func(col string) string {
			i := index[col]
			if i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		rows = append(rows, resolve.ResultRow{
			Title:          get(schema.ColumnTitle),
			LegalName:      get(schema.ColumnCompanyName),
			RegisterNumber: get(schema.ColumnRegisterNumber),
		})
	}
}
