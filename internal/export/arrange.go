package export

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Arrange returns a copy of t with the index column moved to the front and the
// rows stably sorted by sortColumn, ties broken by the index column. When t has
// no index column it is returned unchanged.
func Arrange(t *Table, indexColumn, sortColumn string) *Table {
	idx := t.Column(indexColumn)
	if idx < 0 {
		return t
	}
	out := &Table{
		Name:   t.Name,
		Header: moveFirst(t.Header, idx),
		Types:  moveFirst(t.Types, idx),
		Rows:   make([][]any, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = moveFirst(row, idx)
	}

	by := out.Column(sortColumn)
	if by < 0 || sortColumn == indexColumn {
		return out
	}
	slices.SortStableFunc(out.Rows, func(a, b []any) int {
		if c := compareCells(cellAt(a, by), cellAt(b, by)); c != 0 {
			return c
		}
		return compareCells(cellAt(a, 0), cellAt(b, 0))
	})
	return out
}

func moveFirst[T any](s []T, i int) []T {
	if i >= len(s) {
		return slices.Clone(s)
	}
	out := make([]T, 0, len(s))
	out = append(out, s[i])
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

func cellAt(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}

// compareCells orders nil last, numbers and times by value and everything
// else by its text rendering.
func compareCells(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	return strings.Compare(FormatCell(a, true), FormatCell(b, true))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
