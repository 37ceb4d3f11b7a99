// Package storage defines the backend-agnostic table layout (TableSpec), row
// batches (RowBatch) and the Repository interface the season pipeline writes
// through. Backends register themselves with Register and are opened by kind
// with New.
//
// The table and batch types are shared by projection, which builds them, and
// the backend packages, which execute them.
package storage

import (
	"fmt"
	"strings"
)

// Logical column types. Each backend maps them to a native DDL type.
const (
	TypeInteger = "integer"
	TypeReal    = "real"
	TypeText    = "text"
)

// TableSpec describes one destination table.
type TableSpec struct {
	Name       string       `json:"name"`
	Columns    []ColumnSpec `json:"columns"`
	PrimaryKey []string     `json:"primary_key,omitempty"`

	// Replace drops an existing table before creating it. When false the
	// create is "if not exists" and existing rows survive.
	Replace bool `json:"replace,omitempty"`
}

// ColumnSpec is a single column definition. Nullable defaults to true; primary
// key columns are always NOT NULL.
type ColumnSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable *bool  `json:"nullable,omitempty"`
}

// IsNullable reports whether the column accepts NULL.
func (c ColumnSpec) IsNullable() bool { return c.Nullable == nil || *c.Nullable }

// Validate checks the spec is complete enough to generate DDL.
//
// Errors:
//   - empty table name, no columns, empty or duplicate column name
//   - unknown logical type
//   - primary key column not present in Columns
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("table %s: empty column name", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[c.Name] = true
		switch c.Type {
		case TypeInteger, TypeReal, TypeText:
		default:
			return fmt.Errorf("table %s: column %s: unsupported type %q", t.Name, c.Name, c.Type)
		}
	}
	for _, k := range t.PrimaryKey {
		if !seen[k] {
			return fmt.Errorf("table %s: primary key column %s not declared", t.Name, k)
		}
	}
	return nil
}

// IsKey reports whether column is part of the primary key.
func (t TableSpec) IsKey(column string) bool {
	for _, k := range t.PrimaryKey {
		if k == column {
			return true
		}
	}
	return false
}

// RowBatch is a set of rows upserted into one table. A row whose KeyColumns
// match an existing row replaces it.
type RowBatch struct {
	Table      string
	Columns    []string
	KeyColumns []string
	Rows       [][]any
}

// Validate checks shape: every row has len(Columns) values and every key
// column is one of Columns.
func (b RowBatch) Validate() error {
	if strings.TrimSpace(b.Table) == "" {
		return fmt.Errorf("batch: table name is empty")
	}
	if len(b.Columns) == 0 {
		return fmt.Errorf("batch %s: no columns", b.Table)
	}
	if len(b.KeyColumns) == 0 {
		return fmt.Errorf("batch %s: no key columns", b.Table)
	}
	if _, err := columnIndexes(b.Columns, b.KeyColumns); err != nil {
		return fmt.Errorf("batch %s: %w", b.Table, err)
	}
	for i, r := range b.Rows {
		if len(r) != len(b.Columns) {
			return fmt.Errorf("batch %s: row %d has %d values, want %d", b.Table, i, len(r), len(b.Columns))
		}
	}
	return nil
}

// NonKeyColumns returns Columns minus KeyColumns, in column order.
func (b RowBatch) NonKeyColumns() []string {
	out := make([]string, 0, len(b.Columns))
	for _, c := range b.Columns {
		key := false
		for _, k := range b.KeyColumns {
			if c == k {
				key = true
				break
			}
		}
		if !key {
			out = append(out, c)
		}
	}
	return out
}
