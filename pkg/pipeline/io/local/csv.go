package local

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// TitleColumn is the header a seed CSV must carry.
const TitleColumn = "title"

// ReadTitlesCSV reads a CSV file and returns the non-blank values from the
// "title" column, trimmed, in file order.
func ReadTitlesCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	titleIdx := -1
	for i, col := range header {
		col = strings.TrimPrefix(col, "\ufeff")
		if strings.EqualFold(strings.TrimSpace(col), TitleColumn) {
			titleIdx = i
			break
		}
	}
	if titleIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", TitleColumn)
	}

	var titles []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if titleIdx >= len(rec) {
			return nil, fmt.Errorf("row has %d columns, want at least %d", len(rec), titleIdx+1)
		}
		title := strings.TrimSpace(rec[titleIdx])
		if title == "" {
			continue
		}
		titles = append(titles, title)
	}
	return titles, nil
}

// TitlesFile is an input adapter over a local seed CSV.
type TitlesFile struct {
	Path string
}

func (f TitlesFile) Load(_ context.Context) ([]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open seed csv: %w", err)
	}
	defer file.Close()
	titles, err := ReadTitlesCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return titles, nil
}
