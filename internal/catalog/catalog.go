// Package catalog registers uploaded datasets: it loads the file, keeps the
// table in memory for sessions, persists it to the object store and records
// it in the metadata database when those are configured.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datawise/datawise/internal/dataset"
	"github.com/datawise/datawise/internal/metadata"
	"github.com/datawise/datawise/internal/observability"
	"github.com/datawise/datawise/internal/storage"
)

const DefaultMaxCached = 16

var (
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrEmptyDataset      = errors.New("dataset has no rows")
	ErrInvalidDataset    = errors.New("invalid dataset")
)

var (
	supportedExtensions = map[string]string{
		".csv":     "text/csv",
		".tsv":     "text/tab-separated-values",
		".txt":     "text/plain",
		".parquet": "application/vnd.apache.parquet",
	}
	unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

type Options struct {
	Loader    dataset.Loader
	Store     storage.ObjectStore
	Records   metadata.DatasetRepository
	MaxCached int
	Logger    *slog.Logger
	Now       func() time.Time
}

type entry struct {
	info     metadata.Dataset
	table    dataset.Table
	lastUsed uint64
}

type Service struct {
	loader    dataset.Loader
	store     storage.ObjectStore
	repo      *dataset.Repository
	records   metadata.DatasetRepository
	maxCached int
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	ticks   uint64
}

func NewService(opts Options) *Service {
	maxCached := opts.MaxCached
	if maxCached <= 0 {
		maxCached = DefaultMaxCached
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var repo *dataset.Repository
	if opts.Store != nil {
		repo = dataset.NewRepository(opts.Store, opts.Loader)
	}
	return &Service{
		loader:    opts.Loader,
		store:     opts.Store,
		repo:      repo,
		records:   opts.Records,
		maxCached: maxCached,
		logger:    observability.LoggerOrDiscard(opts.Logger),
		now:       now,
		entries:   map[string]*entry{},
	}
}

// Upload loads a CSV or parquet body and registers it under a new id.
func (s *Service) Upload(ctx context.Context, fileName string, body io.Reader) (metadata.Dataset, dataset.Table, error) {
	fileName = cleanFileName(fileName)
	ext := strings.ToLower(filepath.Ext(fileName))
	contentType, ok := supportedExtensions[ext]
	if !ok {
		return metadata.Dataset{}, dataset.Table{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return metadata.Dataset{}, dataset.Table{}, fmt.Errorf("read upload: %w", err)
	}

	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	table, err := s.load(ctx, name, fileName, data)
	if err != nil {
		return metadata.Dataset{}, dataset.Table{}, err
	}

	info := metadata.Dataset{
		ID:          uuid.NewString(),
		Name:        name,
		FileName:    fileName,
		SizeBytes:   int64(len(data)),
		RowCount:    table.RowCount(),
		ColumnCount: len(table.Columns),
		Columns:     table.Columns,
		CreatedAt:   s.now().UTC(),
	}

	if s.repo != nil {
		if sourceKey, err := storage.BuildSourcePath(info.ID, fileName); err == nil {
			if _, err := storage.PutBytes(ctx, s.store, sourceKey, data, contentType); err != nil {
				s.logger.WarnContext(ctx, "could not store uploaded source", slog.String("dataset_id", info.ID), slog.String("error", err.Error()))
			}
		}
		object, err := s.repo.Save(ctx, info.ID, table)
		if err != nil {
			return metadata.Dataset{}, dataset.Table{}, fmt.Errorf("persist dataset: %w", err)
		}
		info.ObjectKey = object.Key
	}

	if s.records != nil {
		created, err := s.records.CreateDataset(ctx, info)
		if err != nil {
			return metadata.Dataset{}, dataset.Table{}, fmt.Errorf("register dataset: %w", err)
		}
		info = created
	}

	s.remember(info, table)
	s.logger.InfoContext(ctx, "dataset registered",
		slog.String("dataset_id", info.ID),
		slog.String("file_name", fileName),
		slog.Int("rows", info.RowCount),
		slog.Int("columns", info.ColumnCount),
	)
	return info, table, nil
}

func (s *Service) load(ctx context.Context, name, fileName string, data []byte) (dataset.Table, error) {
	if s.loader == nil {
		return dataset.Table{}, errors.New("dataset loader is not configured")
	}
	workDir, err := os.MkdirTemp("", "datawise-upload-")
	if err != nil {
		return dataset.Table{}, fmt.Errorf("create upload temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, fileName)
	if err := os.WriteFile(localPath, data, 0o600); err != nil {
		return dataset.Table{}, fmt.Errorf("write upload: %w", err)
	}
	table, err := s.loader.Load(ctx, name, localPath)
	if err != nil {
		return dataset.Table{}, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}
	if err := table.Validate(); err != nil {
		return dataset.Table{}, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}
	if table.RowCount() == 0 {
		return dataset.Table{}, ErrEmptyDataset
	}
	return table, nil
}

// Table returns the loaded table, reopening it from the object store when it
// is no longer cached.
func (s *Service) Table(ctx context.Context, id string) (dataset.Table, error) {
	if cached, ok := s.touch(id); ok {
		return cached.table, nil
	}
	if s.records == nil || s.repo == nil {
		return dataset.Table{}, metadata.ErrNotFound
	}

	info, err := s.records.GetDataset(ctx, id)
	if err != nil {
		return dataset.Table{}, err
	}
	table, err := s.repo.Open(ctx, id, info.Name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return dataset.Table{}, metadata.ErrNotFound
		}
		return dataset.Table{}, err
	}
	s.remember(info, table)
	return table, nil
}

func (s *Service) Describe(ctx context.Context, id string) (metadata.Dataset, error) {
	if cached, ok := s.touch(id); ok {
		return cached.info, nil
	}
	if s.records == nil {
		return metadata.Dataset{}, metadata.ErrNotFound
	}
	return s.records.GetDataset(ctx, id)
}

// List returns the most recent datasets, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]metadata.Dataset, error) {
	if s.records != nil {
		return s.records.ListDatasets(ctx, limit)
	}
	s.mu.Lock()
	out := make([]metadata.Dataset, 0, len(s.entries))
	for _, cached := range s.entries {
		out = append(out, cached.info)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// touch returns a cached entry and marks it as the most recently used.
func (s *Service) touch(id string) (entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached, ok := s.entries[id]
	if !ok {
		return entry{}, false
	}
	s.ticks++
	cached.lastUsed = s.ticks
	return *cached, true
}

// remember caches a table and evicts the least recently used entries beyond
// maxCached. The entry just stored is never the one evicted.
func (s *Service) remember(info metadata.Dataset, table dataset.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	s.entries[info.ID] = &entry{info: info, table: table, lastUsed: s.ticks}
	for len(s.entries) > s.maxCached {
		victim := ""
		var oldest uint64
		for id, cached := range s.entries {
			if victim == "" || cached.lastUsed < oldest {
				victim, oldest = id, cached.lastUsed
			}
		}
		delete(s.entries, victim)
		s.logger.Debug("dataset evicted from cache", slog.String("dataset_id", victim))
	}
}

func cleanFileName(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	base = strings.Trim(unsafeFileChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		return "upload"
	}
	return base
}
