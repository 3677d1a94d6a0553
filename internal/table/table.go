// Package table holds small immutable string tables used as visualizer input.
package table

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// InvalidColumnError reports a column reference the table cannot satisfy.
type InvalidColumnError struct {
	Column    string
	Available []string
}

func (e *InvalidColumnError) Error() string {
	return fmt.Sprintf("table: %q is not a column in the data, choose one of [%s]",
		e.Column, strings.Join(e.Available, ", "))
}

// Table is an ordered set of named string columns. Methods never mutate the
// receiver; derived tables are copies.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New builds a table. Every row must have one cell per column and column
// names must be unique.
func New(columns []string, rows [][]string) (*Table, error) {
	if len(columns) == 0 {
		return nil, eris.New("table: no columns")
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, eris.Errorf("table: duplicate column %q", c)
		}
		index[c] = i
	}

	copied := make([][]string, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, eris.Errorf("table: row %d has %d cells, want %d", i, len(r), len(columns))
		}
		copied[i] = slices.Clone(r)
	}

	return &Table{columns: slices.Clone(columns), index: index, rows: copied}, nil
}

// FromRecords builds a table from keyed records. Columns are the sorted union
// of keys; every record must carry every column.
func FromRecords(records []map[string]string) (*Table, error) {
	if len(records) == 0 {
		return nil, eris.New("table: no records")
	}
	seen := make(map[string]struct{})
	var columns []string
	for _, rec := range records {
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	slices.Sort(columns)

	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(columns))
		for j, c := range columns {
			v, ok := rec[c]
			if !ok {
				return nil, eris.Errorf("table: record %d is missing %q", i, c)
			}
			row[j] = v
		}
		rows[i] = row
	}
	return New(columns, rows)
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return slices.Clone(t.columns)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Has reports whether name is a column.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column's values.
func (t *Table) Column(name string) ([]string, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, &InvalidColumnError{Column: name, Available: t.Columns()}
	}
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out, nil
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []string {
	return slices.Clone(t.rows[i])
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	idx := make([]int, len(names))
	for k, n := range names {
		j, ok := t.index[n]
		if !ok {
			return nil, &InvalidColumnError{Column: n, Available: t.Columns()}
		}
		idx[k] = j
	}
	rows := make([][]string, len(t.rows))
	for i, r := range t.rows {
		row := make([]string, len(idx))
		for k, j := range idx {
			row[k] = r[j]
		}
		rows[i] = row
	}
	return New(names, rows)
}
