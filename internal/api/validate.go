package api

import (
	"errors"
	"net/http"

	"github.com/datawise/datawise/internal/sqlguard"
)

type validateRequest struct {
	SQL string `json:"sql"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
	Keyword string `json:"keyword,omitempty"`
}

func handleValidateSQL(w http.ResponseWriter, r *http.Request) {
	var request validateRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid validate request body", false, map[string]any{"details": err.Error()})
		return
	}
	response := validateResponse{Valid: true}
	if err := sqlguard.Validate(request.SQL); err != nil {
		response.Valid = false
		response.Reason = err.Error()
		var rejection *sqlguard.Rejection
		if errors.As(err, &rejection) {
			response.Keyword = rejection.Keyword
		}
	}
	writeJSON(w, http.StatusOK, response)
}
