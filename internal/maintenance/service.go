// Package maintenance runs background checks over persisted datasets.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/datawise/datawise/internal/metadata"
	"github.com/datawise/datawise/internal/observability"
	"github.com/datawise/datawise/internal/storage"
)

const maxIssueSamples = 20

// DatasetLister is the slice of the metadata repository the checks need.
type DatasetLister interface {
	ListDatasets(ctx context.Context, limit int) ([]metadata.Dataset, error)
}

type Config struct {
	IntegrityInterval time.Duration
	DatasetLimit      int
}

type Service struct {
	Records     DatasetLister
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
}

type IntegritySummary struct {
	DatasetsScanned     int `json:"datasets_scanned"`
	Unpersisted         int `json:"unpersisted"`
	TablesChecked       int `json:"tables_checked"`
	MissingTables       int `json:"missing_tables"`
	MissingSources      int `json:"missing_sources"`
	SizeMismatchSources int `json:"size_mismatch_sources"`
	OperationalFailures int `json:"operational_failures"`
}

func (s IntegritySummary) failed() bool {
	return s.MissingTables > 0 || s.SizeMismatchSources > 0 || s.OperationalFailures > 0
}

// Run repeats the integrity check on the configured interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	logger := observability.LoggerOrDiscard(s.Logger)
	ticker := time.NewTicker(s.config().IntegrityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.RunIntegrityCheckOnce(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "integrity cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				continue
			}
			logger.InfoContext(ctx, "integrity cycle completed", slog.Any("summary", summary))
		}
	}
}

// RunIntegrityCheckOnce verifies that every registered dataset still has its
// parquet table in the object store and that the uploaded source, when
// present, matches the recorded size. Missing sources are reported but do not
// fail the run.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context) (IntegritySummary, error) {
	logger := observability.LoggerOrDiscard(s.Logger)
	if s.Records == nil {
		return IntegritySummary{}, fmt.Errorf("dataset records are required")
	}
	if s.ObjectStore == nil {
		return IntegritySummary{}, fmt.Errorf("object store is required")
	}

	datasets, err := s.Records.ListDatasets(ctx, s.config().DatasetLimit)
	if err != nil {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		return IntegritySummary{}, fmt.Errorf("list datasets: %w", err)
	}

	summary := IntegritySummary{DatasetsScanned: len(datasets)}
	issueSamples := make([]string, 0, maxIssueSamples)
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(issueSamples) < maxIssueSamples {
			issueSamples = append(issueSamples, message)
		}
	}

	for _, item := range datasets {
		if item.ObjectKey == "" {
			summary.Unpersisted++
			continue
		}
		summary.TablesChecked++
		if _, err := s.ObjectStore.Stat(ctx, item.ObjectKey); err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				summary.MissingTables++
				addIssue(fmt.Sprintf("dataset %s missing table %s", item.ID, item.ObjectKey))
			} else {
				summary.OperationalFailures++
				addIssue(fmt.Sprintf("dataset %s stat table %s: %v", item.ID, item.ObjectKey, err))
			}
			continue
		}

		sourceKey, err := storage.BuildSourcePath(item.ID, item.FileName)
		if err != nil {
			continue
		}
		info, err := s.ObjectStore.Stat(ctx, sourceKey)
		switch {
		case errors.Is(err, storage.ErrObjectNotFound):
			summary.MissingSources++
			logger.WarnContext(ctx, "dataset source missing", slog.String("dataset_id", item.ID), slog.String("key", sourceKey))
		case err != nil:
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("dataset %s stat source %s: %v", item.ID, sourceKey, err))
		case info.Size != item.SizeBytes:
			summary.SizeMismatchSources++
			addIssue(fmt.Sprintf("dataset %s size mismatch for %s (expected=%d actual=%d)", item.ID, sourceKey, item.SizeBytes, info.Size))
		}
	}

	if summary.TablesChecked > 0 {
		integrityTablesCheckedTotal.Add(float64(summary.TablesChecked))
	}
	if summary.MissingTables > 0 {
		integrityMissingTablesTotal.Add(float64(summary.MissingTables))
	}
	if summary.failed() {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		extra := issueCount - len(issueSamples)
		if extra > 0 {
			return summary, fmt.Errorf("integrity check found %d issue(s): %s; ... plus %d more", issueCount, strings.Join(issueSamples, "; "), extra)
		}
		return summary, fmt.Errorf("integrity check found %d issue(s): %s", issueCount, strings.Join(issueSamples, "; "))
	}
	integrityRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func (s *Service) config() Config {
	cfg := s.Config
	if cfg.IntegrityInterval <= 0 {
		cfg.IntegrityInterval = 30 * time.Minute
	}
	if cfg.DatasetLimit <= 0 {
		cfg.DatasetLimit = 1000
	}
	return cfg
}
