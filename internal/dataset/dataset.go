package dataset

import (
	"fmt"
	"strings"
)

// Storage type names reported by the loader for each column.
const (
	StorageInt64    = "int64"
	StorageFloat64  = "float64"
	StorageDatetime = "datetime64"
	StorageBool     = "bool"
	StorageObject   = "object"
)

type Column struct {
	Name        string `json:"name"`
	StorageType string `json:"storage_type"`
}

// Table is a loaded dataset. It is treated as immutable once loaded.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (t Table) Empty() bool {
	return len(t.Columns) == 0 || len(t.Rows) == 0
}

func (t Table) RowCount() int {
	return len(t.Rows)
}

func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		names = append(names, column.Name)
	}
	return names
}

// Head returns up to n leading rows. The returned slice shares storage with the table.
func (t Table) Head(n int) [][]any {
	if n <= 0 {
		return nil
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	for _, column := range t.Columns {
		name := strings.TrimSpace(column.Name)
		if name == "" {
			return fmt.Errorf("column name is required")
		}
		if _, ok := seen[column.Name]; ok {
			return fmt.Errorf("duplicate column %q", column.Name)
		}
		seen[column.Name] = struct{}{}
	}
	for index, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", index, len(row), len(t.Columns))
		}
	}
	return nil
}
