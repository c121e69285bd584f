// Package export writes refreshed series to durable side files and fans
// each refresh out to the configured sinks.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"macrodash/internal/model"
)

// CSVWriter writes one CSV file per series key into a directory.
//
// Columns are date,value and, when the export carries a decomposition,
// trend,cycle. Missing values and the trend/cycle of missing dates are
// empty cells. Files are replaced wholesale on every export.
type CSVWriter struct {
	dir string
}

// NewCSVWriter creates dir if needed.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv export dir: %w", err)
	}
	return &CSVWriter{dir: dir}, nil
}

// Name implements model.SeriesSink.
func (w *CSVWriter) Name() string { return "csv" }

// Path returns the file a key is exported to.
func (w *CSVWriter) Path(key model.Key) string {
	return filepath.Join(w.dir, key.Slug()+".csv")
}

// Export implements model.Exporter.
func (w *CSVWriter) Export(ctx context.Context, e model.Export) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header, rows := Rows(e)
	if err := WriteCSV(w.Path(e.Series.Key), header, rows); err != nil {
		return fmt.Errorf("csv export %s: %w", e.Series.Key, err)
	}
	return nil
}

// Close implements model.SeriesSink.
func (w *CSVWriter) Close() error { return nil }

// Rows renders an export as a header and string rows.
func Rows(e model.Export) ([]string, [][]string) {
	dec := e.Decomposition
	if dec != nil && dec.Len() != e.Series.ValidCount() {
		dec = nil
	}

	header := []string{"date", "value"}
	if dec != nil {
		header = append(header, "trend", "cycle")
	}

	rows := make([][]string, 0, len(e.Series.Points))
	j := 0
	for _, p := range e.Series.Points {
		row := []string{p.Date.Format(model.DateLayout), ""}
		if p.Valid {
			row[1] = formatFloat(p.Value)
		}
		if dec != nil {
			if p.Valid {
				row = append(row, formatFloat(dec.Trend[j]), formatFloat(dec.Cycle[j]))
				j++
			} else {
				row = append(row, "", "")
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
