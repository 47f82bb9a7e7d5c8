// Package schema derives the SQL-facing column types the prompts describe
// from the storage types a loaded table reports.
package schema

import (
	"sort"
	"strings"

	"github.com/datawise/datawise/internal/dataset"
)

type Type string

const (
	Integer Type = "INTEGER"
	Numeric Type = "NUMERIC"
	Date    Type = "DATE"
	Boolean Type = "BOOLEAN"
	Text    Type = "TEXT"
)

// Schema maps every column name of a table to its SQL-facing type.
type Schema map[string]Type

// Infer classifies each column by substring tests on its lower-cased
// storage type. The first matching rule wins.
func Infer(table dataset.Table) Schema {
	out := make(Schema, len(table.Columns))
	for _, column := range table.Columns {
		out[column.Name] = classify(column.StorageType)
	}
	return out
}

func classify(storageType string) Type {
	lowered := strings.ToLower(storageType)
	switch {
	case strings.Contains(lowered, "int"):
		return Integer
	case strings.Contains(lowered, "float"):
		return Numeric
	case strings.Contains(lowered, "datetime"):
		return Date
	case strings.Contains(lowered, "bool"):
		return Boolean
	default:
		return Text
	}
}

// Columns returns the column names in sorted order.
func (s Schema) Columns() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s Schema) NumericColumns() []string {
	return s.filter(func(t Type) bool { return t == Integer || t == Numeric })
}

func (s Schema) TextColumns() []string {
	return s.filter(func(t Type) bool { return t == Text })
}

func (s Schema) filter(keep func(Type) bool) []string {
	var names []string
	for _, name := range s.Columns() {
		if keep(s[name]) {
			names = append(names, name)
		}
	}
	return names
}
