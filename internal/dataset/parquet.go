package dataset

import (
	"bytes"
	"fmt"
	"math/big"
	"time"

	"github.com/parquet-go/parquet-go"
)

// EncodeParquet writes the table as a single parquet file. Every column is
// optional so nil cells survive the round trip.
func EncodeParquet(table Table) ([]byte, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("table has no columns")
	}

	group := parquet.Group{}
	for _, column := range table.Columns {
		group[column.Name] = parquet.Optional(parquetNode(column.StorageType))
	}
	schema := parquet.NewSchema(schemaName(table.Name), group)

	// Group fields are laid out by the schema, not by table order.
	leafIndex := make(map[string]int, len(table.Columns))
	for index, path := range schema.Columns() {
		if len(path) > 0 {
			leafIndex[path[0]] = index
		}
	}

	rows := make([]parquet.Row, 0, len(table.Rows))
	for rowIndex, values := range table.Rows {
		row := make(parquet.Row, len(table.Columns))
		for colIndex, column := range table.Columns {
			leaf := leafIndex[column.Name]
			value, err := parquetValue(column.StorageType, values[colIndex])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", rowIndex, column.Name, err)
			}
			if value.IsNull() {
				row[leaf] = value.Level(0, 0, leaf)
			} else {
				row[leaf] = value.Level(0, 1, leaf)
			}
		}
		rows = append(rows, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	if _, err := writer.WriteRows(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func schemaName(name string) string {
	if name == "" {
		return "dataset"
	}
	return name
}

func parquetNode(storageType string) parquet.Node {
	switch storageType {
	case StorageInt64:
		return parquet.Leaf(parquet.Int64Type)
	case StorageFloat64:
		return parquet.Leaf(parquet.DoubleType)
	case StorageBool:
		return parquet.Leaf(parquet.BooleanType)
	case StorageDatetime:
		return parquet.Timestamp(parquet.Microsecond)
	default:
		return parquet.String()
	}
}

func parquetValue(storageType string, value any) (parquet.Value, error) {
	if value == nil {
		return parquet.NullValue(), nil
	}
	switch storageType {
	case StorageInt64:
		v, ok := asInt64(value)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected integer, got %T", value)
		}
		return parquet.Int64Value(v), nil
	case StorageFloat64:
		v, ok := asFloat64(value)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected number, got %T", value)
		}
		return parquet.DoubleValue(v), nil
	case StorageBool:
		v, ok := value.(bool)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected bool, got %T", value)
		}
		return parquet.BooleanValue(v), nil
	case StorageDatetime:
		v, ok := value.(time.Time)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected time, got %T", value)
		}
		return parquet.Int64Value(v.UTC().UnixMicro()), nil
	default:
		return parquet.ByteArrayValue([]byte(fmt.Sprint(value))), nil
	}
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case *big.Int:
		if v.IsInt64() {
			return v.Int64(), true
		}
	}
	return 0, false
}

func asFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	if i, ok := asInt64(value); ok {
		return float64(i), true
	}
	return 0, false
}
