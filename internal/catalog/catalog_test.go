package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/datawise/datawise/internal/dataset"
	"github.com/datawise/datawise/internal/metadata"
	"github.com/datawise/datawise/internal/storage"
)

type fakeLoader struct {
	table   dataset.Table
	err     error
	paths   []string
	content []string
}

func (f *fakeLoader) Load(_ context.Context, name, path string) (dataset.Table, error) {
	f.paths = append(f.paths, path)
	if data, err := os.ReadFile(path); err == nil {
		f.content = append(f.content, string(data))
	}
	if f.err != nil {
		return dataset.Table{}, f.err
	}
	table := f.table
	table.Name = name
	return table, nil
}

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = data
	m.types[key] = opts.ContentType
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

type fakeRecords struct {
	items map[string]metadata.Dataset
}

func (f *fakeRecords) CreateDataset(_ context.Context, in metadata.Dataset) (metadata.Dataset, error) {
	if f.items == nil {
		f.items = map[string]metadata.Dataset{}
	}
	f.items[in.ID] = in
	return in, nil
}

func (f *fakeRecords) GetDataset(_ context.Context, id string) (metadata.Dataset, error) {
	item, ok := f.items[id]
	if !ok {
		return metadata.Dataset{}, metadata.ErrNotFound
	}
	return item, nil
}

func (f *fakeRecords) ListDatasets(context.Context, int) ([]metadata.Dataset, error) {
	out := make([]metadata.Dataset, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, item)
	}
	return out, nil
}

func salesTable() dataset.Table {
	return dataset.Table{
		Columns: []dataset.Column{
			{Name: "region", StorageType: dataset.StorageObject},
			{Name: "units", StorageType: dataset.StorageInt64},
		},
		Rows: [][]any{{"north", int64(3)}, {"south", int64(5)}},
	}
}

func TestUploadRegistersAndPersists(t *testing.T) {
	loader := &fakeLoader{table: salesTable()}
	store := newMemoryStore()
	records := &fakeRecords{}
	service := NewService(Options{Loader: loader, Store: store, Records: records})

	info, table, err := service.Upload(context.Background(), "Q1 sales.csv", strings.NewReader("region,units\nnorth,3\nsouth,5\n"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if info.FileName != "Q1_sales.csv" || info.Name != "Q1_sales" || info.RowCount != 2 || info.ColumnCount != 2 {
		t.Fatalf("info = %#v", info)
	}
	if table.Name != "Q1_sales" {
		t.Fatalf("table.Name = %q", table.Name)
	}
	if !strings.HasSuffix(loader.paths[0], "Q1_sales.csv") || !strings.HasPrefix(loader.content[0], "region,units") {
		t.Fatalf("loader saw %v / %v", loader.paths, loader.content)
	}
	if info.ObjectKey != info.ID+"/table.parquet" {
		t.Fatalf("ObjectKey = %q", info.ObjectKey)
	}
	if _, ok := store.objects[info.ID+"/source/Q1_sales.csv"]; !ok {
		t.Fatalf("source upload missing, objects = %v", store.objects)
	}
	if store.types[info.ID+"/source/Q1_sales.csv"] != "text/csv" {
		t.Fatalf("source content type = %q", store.types[info.ID+"/source/Q1_sales.csv"])
	}
	if _, ok := records.items[info.ID]; !ok {
		t.Fatal("dataset not recorded")
	}

	cached, err := service.Table(context.Background(), info.ID)
	if err != nil || cached.RowCount() != 2 {
		t.Fatalf("Table() = %#v, %v", cached, err)
	}
}

func TestUploadWithoutPersistenceStaysInMemory(t *testing.T) {
	service := NewService(Options{Loader: &fakeLoader{table: salesTable()}})
	info, _, err := service.Upload(context.Background(), "data.parquet", strings.NewReader("PAR1"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if info.ObjectKey != "" {
		t.Fatalf("ObjectKey = %q, want empty", info.ObjectKey)
	}
	described, err := service.Describe(context.Background(), info.ID)
	if err != nil || described.ID != info.ID {
		t.Fatalf("Describe() = %#v, %v", described, err)
	}
	listed, err := service.List(context.Background(), 10)
	if err != nil || len(listed) != 1 {
		t.Fatalf("List() = %#v, %v", listed, err)
	}
	if _, err := service.Table(context.Background(), "unknown"); !errors.Is(err, metadata.ErrNotFound) {
		t.Fatalf("Table(unknown) error = %v", err)
	}
}

func TestUploadRejectsUnsupportedAndEmptyFiles(t *testing.T) {
	service := NewService(Options{Loader: &fakeLoader{table: salesTable()}})
	if _, _, err := service.Upload(context.Background(), "report.xlsx", strings.NewReader("x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Upload(xlsx) error = %v", err)
	}

	empty := dataset.Table{Columns: []dataset.Column{{Name: "a", StorageType: dataset.StorageInt64}}}
	service = NewService(Options{Loader: &fakeLoader{table: empty}})
	if _, _, err := service.Upload(context.Background(), "empty.csv", strings.NewReader("a\n")); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("Upload(empty) error = %v", err)
	}

	service = NewService(Options{Loader: &fakeLoader{err: errors.New("bad csv")}})
	if _, _, err := service.Upload(context.Background(), "broken.csv", strings.NewReader("")); !errors.Is(err, ErrInvalidDataset) {
		t.Fatalf("Upload(broken) error = %v", err)
	}
}

func TestTableReopensEvictedDataset(t *testing.T) {
	loader := &fakeLoader{table: salesTable()}
	store := newMemoryStore()
	records := &fakeRecords{}
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	service := NewService(Options{
		Loader:    loader,
		Store:     store,
		Records:   records,
		MaxCached: 1,
		Now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
	})
	ctx := context.Background()

	first, _, err := service.Upload(ctx, "first.csv", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("Upload(first) error = %v", err)
	}
	if _, _, err := service.Upload(ctx, "second.csv", strings.NewReader("b")); err != nil {
		t.Fatalf("Upload(second) error = %v", err)
	}

	loads := len(loader.paths)
	table, err := service.Table(ctx, first.ID)
	if err != nil {
		t.Fatalf("Table(first) error = %v", err)
	}
	if len(loader.paths) != loads+1 || !strings.HasSuffix(loader.paths[loads], "table.parquet") {
		t.Fatalf("expected reopen from parquet, paths = %v", loader.paths)
	}
	if table.Name != "first" {
		t.Fatalf("table.Name = %q", table.Name)
	}
}

func TestReopenedDatasetStaysCached(t *testing.T) {
	loader := &fakeLoader{table: salesTable()}
	service := NewService(Options{Loader: loader, Store: newMemoryStore(), Records: &fakeRecords{}, MaxCached: 1})
	ctx := context.Background()

	first, _, err := service.Upload(ctx, "first.csv", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("Upload(first) error = %v", err)
	}
	if _, _, err := service.Upload(ctx, "second.csv", strings.NewReader("b")); err != nil {
		t.Fatalf("Upload(second) error = %v", err)
	}

	loads := len(loader.paths)
	for i := 0; i < 3; i++ {
		if _, err := service.Table(ctx, first.ID); err != nil {
			t.Fatalf("Table(first) #%d error = %v", i, err)
		}
	}
	if reloads := len(loader.paths) - loads; reloads != 1 {
		t.Fatalf("Table(first) reloaded %d times, want 1", reloads)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	loader := &fakeLoader{table: salesTable()}
	service := NewService(Options{Loader: loader, Store: newMemoryStore(), Records: &fakeRecords{}, MaxCached: 2})
	ctx := context.Background()

	upload := func(name string) metadata.Dataset {
		t.Helper()
		info, _, err := service.Upload(ctx, name+".csv", strings.NewReader(name))
		if err != nil {
			t.Fatalf("Upload(%s) error = %v", name, err)
		}
		return info
	}
	a := upload("a")
	b := upload("b")
	if _, err := service.Describe(ctx, a.ID); err != nil {
		t.Fatalf("Describe(a) error = %v", err)
	}
	upload("c")

	loads := len(loader.paths)
	if _, err := service.Table(ctx, a.ID); err != nil {
		t.Fatalf("Table(a) error = %v", err)
	}
	if len(loader.paths) != loads {
		t.Fatalf("recently used dataset a was evicted, paths = %v", loader.paths[loads:])
	}
	if _, err := service.Table(ctx, b.ID); err != nil {
		t.Fatalf("Table(b) error = %v", err)
	}
	if len(loader.paths) != loads+1 {
		t.Fatalf("expected b to be reloaded, paths = %v", loader.paths[loads:])
	}
}

func TestCleanFileName(t *testing.T) {
	tests := map[string]string{
		"sales.csv":            "sales.csv",
		`C:\data\my file.csv`:  "my_file.csv",
		"../../etc/passwd.csv": "passwd.csv",
		"   ":                  "upload",
	}
	for in, want := range tests {
		if got := cleanFileName(in); got != want {
			t.Fatalf("cleanFileName(%q) = %q, want %q", in, got, want)
		}
	}
}
