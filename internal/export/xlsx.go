package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/happyhackingspace/formflat/internal/options"
	"github.com/happyhackingspace/formflat/internal/schema"
)

const (
	dateNumFmt     = "yyyy-mm-dd"
	dateTimeNumFmt = "yyyy-mm-dd hh:mm:ss"
)

// XLSXWriter writes a workbook with one sheet per table.
type XLSXWriter struct {
	opts options.Options
}

// NewXLSX returns a workbook writer.
func NewXLSX(opts options.Options) *XLSXWriter {
	return &XLSXWriter{opts: opts}
}

func (*XLSXWriter) Format() Format { return FormatXLSX }

// SheetNames assigns a valid, unique sheet name to every table of ds.
func SheetNames(ds *Dataset) map[string]string {
	names := make(map[string]string, len(ds.Tables))
	existing := make([]string, 0, len(ds.Tables))
	for _, t := range ds.Tables {
		name := schema.SheetName(t.Name, existing)
		names[t.Name] = name
		existing = append(existing, name)
	}
	return names
}

type cellStyles struct {
	date     int
	dateTime int
}

func (x *XLSXWriter) Write(ctx context.Context, ds *Dataset, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	var styles cellStyles
	var err error
	if styles.date, err = f.NewStyle(&excelize.Style{CustomNumFmt: ptr(dateNumFmt)}); err != nil {
		return fmt.Errorf("create date style: %w", err)
	}
	if styles.dateTime, err = f.NewStyle(&excelize.Style{CustomNumFmt: ptr(dateTimeNumFmt)}); err != nil {
		return fmt.Errorf("create datetime style: %w", err)
	}

	names := SheetNames(ds)
	for i, t := range ds.Tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		sheet := names[t.Name]
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(0), sheet)
		} else {
			_, err = f.NewSheet(sheet)
		}
		if err != nil {
			return fmt.Errorf("create sheet %q: %w", sheet, err)
		}
		if err := x.writeSheet(f, sheet, Arrange(t, x.opts.IndexColumn, x.opts.SortColumn), names, styles); err != nil {
			return fmt.Errorf("write sheet %q: %w", sheet, err)
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func (x *XLSXWriter) writeSheet(f *excelize.File, sheet string, t *Table, names map[string]string, styles cellStyles) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	parentCol := t.Column(options.ParentTable)
	for r, row := range t.Rows {
		cells := make([]any, len(row))
		for c, v := range row {
			if c == parentCol {
				if s, ok := v.(string); ok {
					if name, ok := names[s]; ok {
						v = name
					}
				}
			}
			cells[c] = x.cell(v, styles)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func (x *XLSXWriter) cell(v any, styles cellStyles) any {
	switch v := v.(type) {
	case nil, string, bool, int, int64, float64:
		return v
	case time.Time:
		style := styles.dateTime
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			style = styles.date
		}
		return excelize.Cell{StyleID: style, Value: v}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return FormatCell(v, x.opts.ISODates)
	}
}

func ptr[T any](v T) *T { return &v }
