package export

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/happyhackingspace/formflat/internal/form"
	"github.com/happyhackingspace/formflat/internal/options"
)

// SQLiteWriter writes a SQLite database with one table per output table.
// The database is built in a temporary file and then copied to the sink.
type SQLiteWriter struct {
	opts options.Options
}

// NewSQLite returns a SQLite writer.
func NewSQLite(opts options.Options) *SQLiteWriter {
	return &SQLiteWriter{opts: opts}
}

func (*SQLiteWriter) Format() Format { return FormatSQLite }

func (s *SQLiteWriter) Write(ctx context.Context, ds *Dataset, w io.Writer) error {
	tmp, err := os.CreateTemp("", "formflat-*.sqlite")
	if err != nil {
		return fmt.Errorf("failed to create temp database: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := s.build(ctx, path, ds); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func (s *SQLiteWriter) build(ctx context.Context, path string, ds *Dataset) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range ds.Tables {
		if err := s.writeTable(ctx, tx, t); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *SQLiteWriter) writeTable(ctx context.Context, tx *sql.Tx, t *Table) error {
	cols := make([]string, len(t.Header))
	defs := make([]string, len(t.Header))
	for i, h := range columnNames(t.Header) {
		cols[i] = quoteIdent(h)
		typ := ""
		if i < len(t.Types) {
			typ = t.Types[i]
		}
		defs[i] = cols[i] + " " + affinity(typ)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.Name), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if len(t.Rows) == 0 {
		return nil
	}

	placeholders := make([]any, len(cols))
	for i := range placeholders {
		placeholders[i] = ""
	}
	sqlStr, _, err := sq.Insert(quoteIdent(t.Name)).Columns(cols...).Values(placeholders...).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, sqlStr)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for r, row := range t.Rows {
		for i := range args {
			args[i] = nil
			if i < len(row) {
				args[i] = s.value(row[i])
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", r+1, err)
		}
	}
	return nil
}

func (s *SQLiteWriter) value(v any) any {
	switch v := v.(type) {
	case nil, string, int, int64, float64:
		return v
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return FormatCell(v, s.opts.ISODates)
	}
}

func affinity(bindType string) string {
	switch bindType {
	case form.BindInt:
		return "INTEGER"
	case form.BindDecimal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// columnNames makes header titles unique under SQLite's case-insensitive
// identifier comparison.
func columnNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := h
		for n := 2; seen[strings.ToLower(name)] > 0; n++ {
			name = fmt.Sprintf("%s_%d", h, n)
		}
		seen[strings.ToLower(name)]++
		out[i] = name
	}
	return out
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
