// Package flatten explodes nested submission records into one row set per table.
//
// Repeat instances become rows of the repeat's table, linked to the row that
// produced them through ParentTable and ParentIndex. Row indexes are 1-based
// and gap-free per table across every record a Flattener sees.
package flatten

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/happyhackingspace/formflat/internal/apperr"
	"github.com/happyhackingspace/formflat/internal/options"
	"github.com/happyhackingspace/formflat/internal/schema"
)

// Row is one flattened row of a table.
type Row struct {
	Table       string
	Index       int
	ParentIndex int    // -1 for root rows
	ParentTable string // empty for root rows
	Values      map[string]any
}

// Tables accumulates rows per table. Table order follows the schema.
type Tables struct {
	order []string
	rows  map[string][]*Row
}

// NewTables returns an empty accumulator with one entry per schema table.
func NewTables(s *schema.Schema) *Tables {
	t := &Tables{rows: make(map[string][]*Row)}
	for _, tbl := range s.Tables() {
		t.order = append(t.order, tbl.Name)
		t.rows[tbl.Name] = nil
	}
	return t
}

// Names returns the table names in schema order.
func (t *Tables) Names() []string { return t.order }

// Rows returns the rows of a table in index order.
func (t *Tables) Rows(name string) []*Row { return t.rows[name] }

// Len returns the total number of rows across tables.
func (t *Tables) Len() int {
	n := 0
	for _, rows := range t.rows {
		n += len(rows)
	}
	return n
}

// Merge appends other's rows to t.
func (t *Tables) Merge(other *Tables) {
	for _, name := range other.order {
		if _, ok := t.rows[name]; !ok {
			t.order = append(t.order, name)
		}
		t.rows[name] = append(t.rows[name], other.rows[name]...)
	}
}

func (t *Tables) add(r *Row) {
	t.rows[r.Table] = append(t.rows[r.Table], r)
}

// Flattener flattens the records of one export job. It is not safe for
// concurrent use.
type Flattener struct {
	schema   *schema.Schema
	opts     options.Options
	counters map[string]int
}

// New returns a Flattener for s with all table counters at zero.
func New(s *schema.Schema, opts options.Options) *Flattener {
	return &Flattener{schema: s, opts: opts, counters: make(map[string]int)}
}

// Flatten explodes one submission record. A list of mappings under a key that
// names no schema table is a SourceDataError.
func (f *Flattener) Flatten(record map[string]any) (*Tables, error) {
	out := NewTables(f.schema)
	if err := f.flatten(record, f.schema.Name, "", -1, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FlattenAll flattens records in order into a single accumulator. progress,
// when set, is called after each record.
func (f *Flattener) FlattenAll(records []map[string]any, progress func(done, total int)) (*Tables, error) {
	all := NewTables(f.schema)
	for i, rec := range records {
		t, err := f.Flatten(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		all.Merge(t)
		if progress != nil {
			progress(i+1, len(records))
		}
	}
	return all, nil
}

func (f *Flattener) flatten(data map[string]any, table, parentTable string, parentIndex int, out *Tables) error {
	f.counters[table]++
	row := &Row{
		Table:       table,
		Index:       f.counters[table],
		ParentIndex: parentIndex,
		ParentTable: parentTable,
		Values:      make(map[string]any, len(data)),
	}
	out.add(row)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if slices.Contains(options.IgnoredFields, k) {
			continue
		}
		switch v := data[k].(type) {
		case []any:
			switch {
			case k == options.Tags:
				row.Values[k] = joinTags(v)
			case k == options.Notes:
				row.Values[k] = joinNotes(v)
			case len(v) == 0:
				// repeat with no instances
			case isRepeat(v):
				if f.schema.Table(k) == nil {
					return apperr.SourceDataf("flatten", "repeat %q in table %q is not in the form", k, table)
				}
				for _, item := range v {
					if err := f.flatten(item.(map[string]any), k, table, row.Index, out); err != nil {
						return err
					}
				}
			default:
				row.Values[k] = v
			}
		default:
			row.Values[k] = v
		}
	}
	return nil
}

func isRepeat(items []any) bool {
	for _, it := range items {
		if _, ok := it.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func joinTags(items []any) string {
	tags := make([]string, 0, len(items))
	for _, it := range items {
		tags = append(tags, fmt.Sprint(it))
	}
	return strings.Join(tags, ",")
}

func joinNotes(items []any) string {
	notes := make([]string, 0, len(items))
	for _, it := range items {
		switch n := it.(type) {
		case map[string]any:
			if s, ok := n["note"]; ok {
				notes = append(notes, fmt.Sprint(s))
			}
		case string:
			notes = append(notes, n)
		}
	}
	return strings.Join(notes, "\r\n")
}
