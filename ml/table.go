package ml

import (
	"errors"
	"fmt"
)

// Table is a header plus string rows. Columns are matched by name, so
// column order does not matter and extra columns are carried along untouched.
type Table struct {
	Columns []string
	Rows    [][]string
}

func NewTable(columns []string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

func (t *Table) AppendRow(values []string) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, append([]string(nil), values...))
	return nil
}

// WithColumn returns a copy of t with one trailing column appended.
func (t *Table) WithColumn(name string, values []string) (*Table, error) {
	if len(values) != len(t.Rows) {
		return nil, fmt.Errorf("column %s has %d values, table has %d rows", name, len(values), len(t.Rows))
	}
	out := &Table{
		Columns: make([]string, 0, len(t.Columns)+1),
		Rows:    make([][]string, len(t.Rows)),
	}
	out.Columns = append(out.Columns, t.Columns...)
	out.Columns = append(out.Columns, name)
	for i, row := range t.Rows {
		next := make([]string, 0, len(row)+1)
		next = append(next, row...)
		out.Rows[i] = append(next, values[i])
	}
	return out, nil
}

// Column resolves name to its values, failing with a schema mismatch when
// the column is absent.
func (t *Table) Column(name string) ([]string, error) {
	if t == nil {
		return nil, errors.New("table is nil")
	}
	idx := t.Index(name)
	if idx < 0 {
		return nil, &SchemaMismatchError{Column: name, Reason: "column is missing"}
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx >= len(row) {
			return nil, &SchemaMismatchError{Column: name, Reason: fmt.Sprintf("row %d is too short", i)}
		}
		values[i] = row[idx]
	}
	return values, nil
}
