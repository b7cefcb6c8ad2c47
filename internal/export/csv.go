package export

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/happyhackingspace/formflat/internal/options"
)

// CSVWriter writes a zip archive holding one CSV file per table.
type CSVWriter struct {
	opts options.Options
}

// NewCSV returns a CSV zip writer.
func NewCSV(opts options.Options) *CSVWriter {
	return &CSVWriter{opts: opts}
}

func (*CSVWriter) Format() Format { return FormatCSV }

// CSVFileName returns the archive entry name of a table.
func CSVFileName(table string) string {
	return strings.ReplaceAll(table, "/", "_") + ".csv"
}

func (c *CSVWriter) Write(ctx context.Context, ds *Dataset, w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, t := range ds.Tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := zw.Create(CSVFileName(t.Name))
		if err != nil {
			return fmt.Errorf("create %s: %w", t.Name, err)
		}
		if err := c.writeTable(f, t); err != nil {
			return fmt.Errorf("write %s: %w", t.Name, err)
		}
	}
	return zw.Close()
}

func (c *CSVWriter) writeTable(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = FormatCell(row[i], c.opts.ISODates)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
