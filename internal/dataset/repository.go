package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/datawise/datawise/internal/storage"
)

// Loader reads a CSV or parquet file from local disk into a Table.
type Loader interface {
	Load(ctx context.Context, name, path string) (Table, error)
}

// Repository persists loaded tables as parquet objects and reopens them on demand.
type Repository struct {
	store  storage.ObjectStore
	loader Loader
}

func NewRepository(store storage.ObjectStore, loader Loader) *Repository {
	return &Repository{store: store, loader: loader}
}

func (r *Repository) Save(ctx context.Context, datasetID string, table Table) (storage.ObjectInfo, error) {
	if r.store == nil {
		return storage.ObjectInfo{}, fmt.Errorf("object store is required")
	}
	key, err := storage.BuildDatasetPath(datasetID)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	data, err := EncodeParquet(table)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("encode dataset %q: %w", datasetID, err)
	}
	info, err := storage.PutBytes(ctx, r.store, key, data, "application/vnd.apache.parquet")
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if info.Key == "" {
		info.Key = key
	}
	return info, nil
}

func (r *Repository) Open(ctx context.Context, datasetID, name string) (Table, error) {
	if r.store == nil || r.loader == nil {
		return Table{}, fmt.Errorf("object store and loader are required")
	}
	key, err := storage.BuildDatasetPath(datasetID)
	if err != nil {
		return Table{}, err
	}
	data, err := storage.ReadAll(ctx, r.store, key)
	if err != nil {
		return Table{}, err
	}

	workDir, err := os.MkdirTemp("", "datawise-dataset-")
	if err != nil {
		return Table{}, fmt.Errorf("create dataset temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, "table.parquet")
	if err := os.WriteFile(localPath, data, 0o600); err != nil {
		return Table{}, fmt.Errorf("write local parquet file: %w", err)
	}
	table, err := r.loader.Load(ctx, name, localPath)
	if err != nil {
		return Table{}, fmt.Errorf("load dataset %q: %w", datasetID, err)
	}
	return table, nil
}
