// Package metadata describes what the service records about datasets,
// conversations and executed queries.
package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/datawise/datawise/internal/dataset"
)

var ErrNotFound = errors.New("metadata: not found")

type Dataset struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	FileName    string           `json:"file_name"`
	ObjectKey   string           `json:"object_key"`
	SizeBytes   int64            `json:"size_bytes"`
	RowCount    int              `json:"row_count"`
	ColumnCount int              `json:"column_count"`
	Columns     []dataset.Column `json:"columns"`
	CreatedAt   time.Time        `json:"created_at"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DatasetRepository interface {
	CreateDataset(ctx context.Context, in Dataset) (Dataset, error)
	GetDataset(ctx context.Context, id string) (Dataset, error)
	ListDatasets(ctx context.Context, limit int) ([]Dataset, error)
}
