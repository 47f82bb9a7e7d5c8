package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datawise/datawise/internal/chat"
	"github.com/datawise/datawise/internal/completion"
	"github.com/datawise/datawise/internal/config"
	"github.com/datawise/datawise/internal/dataset"
	"github.com/datawise/datawise/internal/metadata"
	"github.com/datawise/datawise/internal/nl2sql"
	"github.com/datawise/datawise/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// DatasetCatalog is the subset of the catalog service used by the handlers.
type DatasetCatalog interface {
	Upload(ctx context.Context, fileName string, body io.Reader) (metadata.Dataset, dataset.Table, error)
	Table(ctx context.Context, id string) (dataset.Table, error)
	Describe(ctx context.Context, id string) (metadata.Dataset, error)
	List(ctx context.Context, limit int) ([]metadata.Dataset, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	AuthMiddleware    func(http.Handler) http.Handler
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	TurnTimeout       time.Duration
	Datasets          DatasetCatalog
	Sessions          *SessionRegistry
	Chat              *chat.Orchestrator
	Queries           chat.QueryRunner
	Assistant         *nl2sql.Assistant
	Maintenance       MaintenanceRunner
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/datasets", func(w http.ResponseWriter, r *http.Request) {
		handleUploadDataset(cfg, deps, w, r)
	})
	protected.HandleFunc("GET /v1/datasets", func(w http.ResponseWriter, r *http.Request) {
		handleListDatasets(deps, w, r)
	})
	protected.HandleFunc("GET /v1/datasets/{id}/schema", func(w http.ResponseWriter, r *http.Request) {
		handleDatasetSchema(deps, w, r)
	})
	protected.HandleFunc("GET /v1/datasets/{id}/suggestions", func(w http.ResponseWriter, r *http.Request) {
		handleDatasetSuggestions(cfg, deps, w, r)
	})

	protected.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleCreateSession(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleEndSession(deps, w, r)
	})
	protected.HandleFunc("PUT /v1/sessions/{id}/dataset", func(w http.ResponseWriter, r *http.Request) {
		handleAttachDataset(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{id}/chat", func(w http.ResponseWriter, r *http.Request) {
		handleChat(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{id}/query", func(w http.ResponseWriter, r *http.Request) {
		handleSessionQuery(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		handleClearSession(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
		handleSessionSummary(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		handleSessionHistory(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{id}/search", func(w http.ResponseWriter, r *http.Request) {
		handleSessionSearch(deps, w, r)
	})

	protected.HandleFunc("POST /v1/sql/validate", handleValidateSQL)
	protected.HandleFunc("POST /v1/integrity/run", func(w http.ResponseWriter, r *http.Request) {
		handleIntegrityRun(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/datasets", protectedHandler)
	mux.Handle("GET /v1/datasets", protectedHandler)
	mux.Handle("GET /v1/datasets/{id}/schema", protectedHandler)
	mux.Handle("GET /v1/datasets/{id}/suggestions", protectedHandler)
	mux.Handle("POST /v1/sessions", protectedHandler)
	mux.Handle("DELETE /v1/sessions/{id}", protectedHandler)
	mux.Handle("PUT /v1/sessions/{id}/dataset", protectedHandler)
	mux.Handle("POST /v1/sessions/{id}/chat", protectedHandler)
	mux.Handle("POST /v1/sessions/{id}/query", protectedHandler)
	mux.Handle("DELETE /v1/sessions/{id}/messages", protectedHandler)
	mux.Handle("GET /v1/sessions/{id}/summary", protectedHandler)
	mux.Handle("GET /v1/sessions/{id}/history", protectedHandler)
	mux.Handle("GET /v1/sessions/{id}/search", protectedHandler)
	mux.Handle("POST /v1/sql/validate", protectedHandler)
	mux.Handle("POST /v1/integrity/run", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger), observability.RecoverMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckCompletion fails while no completion backend is configured.
func CheckCompletion(service completion.Service) ReadinessCheck {
	return func(_ context.Context) error {
		if service == nil || !service.Available() {
			return errors.New("completion service is not available")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
