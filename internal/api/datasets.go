package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/datawise/datawise/internal/catalog"
	"github.com/datawise/datawise/internal/config"
	"github.com/datawise/datawise/internal/dataset"
	"github.com/datawise/datawise/internal/metadata"
	"github.com/datawise/datawise/internal/schema"
)

const (
	defaultUploadLimit     = 200 << 20
	defaultPreviewRows     = 5
	defaultDatasetPageSize = 50
	maxSuggestions         = 20
)

type datasetResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	FileName    string           `json:"file_name"`
	SizeBytes   int64            `json:"size_bytes"`
	RowCount    int              `json:"row_count"`
	ColumnCount int              `json:"column_count"`
	Columns     []dataset.Column `json:"columns"`
	CreatedAt   time.Time        `json:"created_at"`
}

func toDatasetResponse(in metadata.Dataset) datasetResponse {
	return datasetResponse{
		ID:          in.ID,
		Name:        in.Name,
		FileName:    in.FileName,
		SizeBytes:   in.SizeBytes,
		RowCount:    in.RowCount,
		ColumnCount: in.ColumnCount,
		Columns:     in.Columns,
		CreatedAt:   in.CreatedAt,
	}
}

func handleUploadDataset(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Datasets == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASETS_NOT_CONFIGURED", "dataset catalog is not configured", false, nil)
		return
	}
	fileName := strings.TrimSpace(r.URL.Query().Get("filename"))
	if fileName == "" {
		fileName = strings.TrimSpace(r.Header.Get("X-File-Name"))
	}
	if fileName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "FILENAME_REQUIRED", "filename query parameter is required", false, nil)
		return
	}

	limit := cfg.HTTP.MaxUploadSize
	if limit <= 0 {
		limit = defaultUploadLimit
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	info, _, err := deps.Datasets.Upload(r.Context(), fileName, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "upload exceeds the configured size limit", false, map[string]any{"limit_bytes": limit})
		case errors.Is(err, catalog.ErrUnsupportedFormat):
			writeError(r.Context(), w, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT", err.Error(), false, map[string]any{"file_name": fileName})
		case errors.Is(err, catalog.ErrEmptyDataset):
			writeError(r.Context(), w, http.StatusUnprocessableEntity, "EMPTY_DATASET", err.Error(), false, nil)
		case errors.Is(err, catalog.ErrInvalidDataset):
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATASET", err.Error(), false, nil)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_UPLOAD_FAILED", err.Error(), true, nil)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toDatasetResponse(info))
}

func handleListDatasets(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Datasets == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASETS_NOT_CONFIGURED", "dataset catalog is not configured", false, nil)
		return
	}
	limit, err := positiveQueryInt(r, "limit", defaultDatasetPageSize)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", err.Error(), false, nil)
		return
	}
	items, err := deps.Datasets.List(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_LIST_FAILED", err.Error(), true, nil)
		return
	}
	out := make([]datasetResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toDatasetResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

func handleDatasetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	info, table, ok := lookupDataset(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset": toDatasetResponse(info),
		"schema":  schema.Infer(table),
		"preview": table.Head(defaultPreviewRows),
	})
}

func handleDatasetSuggestions(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	fallbackCount := cfg.Chat.SuggestionCount
	if fallbackCount <= 0 {
		fallbackCount = 5
	}
	n, err := positiveQueryInt(r, "n", fallbackCount)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_COUNT", err.Error(), false, nil)
		return
	}
	if n > maxSuggestions {
		n = maxSuggestions
	}
	_, table, ok := lookupDataset(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": assistantOrFallback(deps).Suggest(r.Context(), table, n)})
}

func lookupDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) (metadata.Dataset, dataset.Table, bool) {
	if deps.Datasets == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASETS_NOT_CONFIGURED", "dataset catalog is not configured", false, nil)
		return metadata.Dataset{}, dataset.Table{}, false
	}
	id := r.PathValue("id")
	info, err := deps.Datasets.Describe(r.Context(), id)
	if err == nil {
		var table dataset.Table
		table, err = deps.Datasets.Table(r.Context(), id)
		if err == nil {
			return info, table, true
		}
	}
	writeDatasetLookupError(w, r, id, err)
	return metadata.Dataset{}, dataset.Table{}, false
}

func writeDatasetLookupError(w http.ResponseWriter, r *http.Request, id string, err error) {
	if errors.Is(err, metadata.ErrNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset not found", false, map[string]any{"dataset_id": id})
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_LOOKUP_FAILED", err.Error(), true, map[string]any{"dataset_id": id})
}

func positiveQueryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, errors.New(key + " must be a positive integer")
	}
	return value, nil
}
