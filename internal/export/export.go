// Package export writes processed tables to an output artifact.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/happyhackingspace/formflat/internal/options"
)

// Format is an output format.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatXLSX   Format = "xlsx"
	FormatSQLite Format = "sqlite"
)

// Formats lists the supported formats.
var Formats = []Format{FormatXLSX, FormatCSV, FormatSQLite}

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV, "zip":
		return FormatCSV, nil
	case FormatXLSX, "xls", "excel":
		return FormatXLSX, nil
	case FormatSQLite, "sqlite3", "db":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Ext returns the file extension of the artifact, without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatCSV:
		return "zip"
	case FormatSQLite:
		return "sqlite"
	default:
		return "xlsx"
	}
}

// ContentType returns the MIME type of the artifact.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "application/zip"
	case FormatSQLite:
		return "application/vnd.sqlite3"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// Table is one output table. Rows align positionally with Header, and Types
// holds the bind type of each header slot.
type Table struct {
	Name   string
	Header []string
	Types  []string
	Rows   [][]any
}

// Column returns the index of a header title, or -1.
func (t *Table) Column(title string) int {
	for i, h := range t.Header {
		if h == title {
			return i
		}
	}
	return -1
}

// Dataset is the ordered set of tables of one export, root table first.
type Dataset struct {
	Tables []*Table
}

// Writer serializes a Dataset to a sink.
type Writer interface {
	Format() Format
	Write(ctx context.Context, ds *Dataset, w io.Writer) error
}

// New returns the writer for a format.
func New(f Format, opts options.Options) (Writer, error) {
	switch f {
	case FormatCSV:
		return NewCSV(opts), nil
	case FormatXLSX:
		return NewXLSX(opts), nil
	case FormatSQLite:
		return NewSQLite(opts), nil
	}
	return nil, fmt.Errorf("unknown export format %q", f)
}

// FormatCell renders a cell as text. Booleans are True/False, nil is empty,
// and times are ISO-8601 when iso is set.
func FormatCell(v any, iso bool) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case time.Time:
		return formatTime(v, iso)
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

func formatTime(t time.Time, iso bool) string {
	dateOnly := t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
	switch {
	case dateOnly:
		return t.Format(time.DateOnly)
	case iso:
		return t.Format(time.RFC3339)
	default:
		return t.Format(time.DateTime)
	}
}
