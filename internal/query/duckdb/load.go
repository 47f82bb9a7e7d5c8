package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/datawise/datawise/internal/dataset"
)

// Load reads a CSV or parquet file into a Table, inferring column types
// with DuckDB's readers.
func (e *Engine) Load(ctx context.Context, name, path string) (dataset.Table, error) {
	reader, err := readerFor(path)
	if err != nil {
		return dataset.Table{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return dataset.Table{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s(%s)", reader, quoteString(path)))
	if err != nil {
		return dataset.Table{}, fmt.Errorf("read %q: %w", filepath.Base(path), err)
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return dataset.Table{}, fmt.Errorf("read column types: %w", err)
	}
	table := dataset.Table{Name: name, Columns: make([]dataset.Column, len(columnTypes))}
	for i, columnType := range columnTypes {
		table.Columns[i] = dataset.Column{
			Name:        columnType.Name(),
			StorageType: storageTypeFor(columnType.DatabaseTypeName()),
		}
	}

	for rows.Next() {
		values := make([]any, len(columnTypes))
		targets := make([]any, len(columnTypes))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return dataset.Table{}, fmt.Errorf("scan row: %w", err)
		}
		for i, column := range table.Columns {
			values[i] = coerce(column.StorageType, values[i])
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return dataset.Table{}, fmt.Errorf("iterate rows: %w", err)
	}
	return table, nil
}

func readerFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return "read_csv_auto", nil
	case ".parquet":
		return "read_parquet", nil
	default:
		return "", fmt.Errorf("unsupported dataset file type %q", filepath.Ext(path))
	}
}
