package dataset

import (
	"bytes"
	"testing"
	"time"
)

func sampleTable() Table {
	return Table{
		Name: "sales",
		Columns: []Column{
			{Name: "region", StorageType: StorageObject},
			{Name: "units", StorageType: StorageInt64},
			{Name: "price", StorageType: StorageFloat64},
			{Name: "sold_at", StorageType: StorageDatetime},
			{Name: "returned", StorageType: StorageBool},
		},
		Rows: [][]any{
			{"north", int64(3), 9.5, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), false},
			{"south", int64(7), nil, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), true},
		},
	}
}

func TestTableHelpers(t *testing.T) {
	table := sampleTable()
	if table.Empty() {
		t.Fatal("Empty() = true")
	}
	names := table.ColumnNames()
	if len(names) != 5 || names[0] != "region" || names[4] != "returned" {
		t.Fatalf("ColumnNames() = %#v", names)
	}
	if got := len(table.Head(1)); got != 1 {
		t.Fatalf("Head(1) len = %d", got)
	}
	if got := len(table.Head(10)); got != 2 {
		t.Fatalf("Head(10) len = %d", got)
	}
	if (Table{Columns: table.Columns}).Empty() != true {
		t.Fatal("table without rows should be empty")
	}
}

func TestValidateRejectsMalformedTables(t *testing.T) {
	tests := []Table{
		{Columns: []Column{{Name: " "}}},
		{Columns: []Column{{Name: "a"}, {Name: "a"}}},
		{Columns: []Column{{Name: "a"}}, Rows: [][]any{{1, 2}}},
	}
	for _, table := range tests {
		if err := table.Validate(); err == nil {
			t.Fatalf("Validate() expected error for %#v", table)
		}
	}
}

func TestEncodeParquetProducesParquetFile(t *testing.T) {
	data, err := EncodeParquet(sampleTable())
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Fatal("EncodeParquet() output missing parquet magic")
	}
}

func TestEncodeParquetRejectsMistypedCell(t *testing.T) {
	table := Table{
		Columns: []Column{{Name: "units", StorageType: StorageInt64}},
		Rows:    [][]any{{"seven"}},
	}
	if _, err := EncodeParquet(table); err == nil {
		t.Fatal("EncodeParquet() expected type error")
	}
}
