package api

import (
	"context"
	"net/http"

	"github.com/datawise/datawise/internal/maintenance"
)

type MaintenanceRunner interface {
	RunIntegrityCheckOnce(ctx context.Context) (maintenance.IntegritySummary, error)
}

func handleIntegrityRun(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Maintenance == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "MAINTENANCE_NOT_CONFIGURED", "maintenance service is not configured", false, nil)
		return
	}

	summary, err := deps.Maintenance.RunIntegrityCheckOnce(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTEGRITY_CHECK_FAILED", "integrity check failed", true, map[string]any{
			"details": err.Error(),
			"summary": summary,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "completed",
		"summary": summary,
	})
}
