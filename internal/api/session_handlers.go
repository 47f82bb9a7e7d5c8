package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/datawise/datawise/internal/auth"
	"github.com/datawise/datawise/internal/chat"
	"github.com/datawise/datawise/internal/conversation"
	"github.com/datawise/datawise/internal/nl2sql"
	"github.com/datawise/datawise/internal/observability"
	"github.com/datawise/datawise/internal/pipeline"
	"github.com/datawise/datawise/internal/query"
	"github.com/datawise/datawise/internal/semantic"
	"github.com/datawise/datawise/internal/sqlguard"
)

const (
	defaultSearchResults = 5
	maxSearchResults     = 50
)

type createSessionRequest struct {
	DatasetID string `json:"dataset_id"`
	Title     string `json:"title"`
}

type attachDatasetRequest struct {
	DatasetID string `json:"dataset_id"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	DatasetID string    `json:"dataset_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type chatRequest struct {
	Message    string `json:"message"`
	UseContext *bool  `json:"use_context"`
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	SQL         string   `json:"sql"`
	Columns     []string `json:"columns"`
	Rows        [][]any  `json:"rows"`
	RowCount    int      `json:"row_count"`
	Truncated   bool     `json:"truncated"`
	Repaired    bool     `json:"repaired"`
	Explanation string   `json:"explanation"`
	Analysis    string   `json:"analysis"`
	Chart       string   `json:"chart"`
}

type searchMatch struct {
	Content   string            `json:"content"`
	Score     float64           `json:"score"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session registry is not configured", false, nil)
		return
	}
	var request createSessionRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid session request body", false, map[string]any{"details": err.Error()})
		return
	}
	datasetID := strings.TrimSpace(request.DatasetID)
	var data *chat.Data
	if datasetID != "" {
		var ok bool
		if data, ok = loadSessionData(deps, w, r, datasetID); !ok {
			return
		}
	}
	session := deps.Sessions.Create(r.Context(), request.Title, datasetID, data)
	writeJSON(w, http.StatusCreated, sessionResponse{ID: session.ID(), DatasetID: datasetID, CreatedAt: session.createdAt})
}

func handleEndSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if _, ok := lookupSession(deps, w, r); !ok {
		return
	}
	if !deps.Sessions.Remove(r.PathValue("id")) {
		writeSessionNotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleAttachDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	var request attachDatasetRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid dataset request body", false, map[string]any{"details": err.Error()})
		return
	}
	datasetID := strings.TrimSpace(request.DatasetID)
	if datasetID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DATASET_ID_REQUIRED", "dataset_id is required", false, nil)
		return
	}
	data, ok := loadSessionData(deps, w, r, datasetID)
	if !ok {
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	session.data = data
	session.datasetID = datasetID
	writeJSON(w, http.StatusOK, sessionResponse{ID: session.ID(), DatasetID: datasetID, CreatedAt: session.createdAt})
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat orchestrator is not configured", false, nil)
		return
	}
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	var request chatRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "message is required", false, nil)
		return
	}
	useContext := true
	if request.UseContext != nil {
		useContext = *request.UseContext
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	ctx, cancel := turnContext(sessionContext(r.Context(), session), deps.TurnTimeout)
	defer cancel()
	response := deps.Chat.Handle(ctx, session.conv, request.Message, session.data, useContext)
	payload := map[string]any{"response": response}
	if response.Kind == chat.KindQueryResult {
		payload["followups"] = chat.SuggestedFollowups()
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleSessionQuery runs a question straight through the pipeline and adds
// an explanation, an analysis and a chart recommendation.
func handleSessionQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Queries == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	var request queryRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.data == nil {
		writeError(r.Context(), w, http.StatusConflict, "DATASET_REQUIRED", "attach a dataset to the session first", false, nil)
		return
	}
	ctx, cancel := turnContext(sessionContext(r.Context(), session), deps.TurnTimeout)
	defer cancel()
	session.conv.Append(ctx, conversation.RoleUser, question, nil)

	outcome, err := deps.Queries.Run(ctx, question, session.data.Table, session.data.Schema)
	if err != nil {
		session.conv.Append(ctx, conversation.RoleAssistant, err.Error(), map[string]any{"type": string(chat.KindError)})
		writeQueryError(ctx, w, outcome, err)
		return
	}

	result := outcome.Result
	assistant := assistantOrFallback(deps)
	response := queryResponse{
		SQL:         outcome.Candidate.SQL,
		Columns:     result.Columns,
		Rows:        result.Rows,
		RowCount:    result.RowCount,
		Truncated:   result.Truncated,
		Repaired:    outcome.Repaired,
		Explanation: assistant.Explain(ctx, outcome.Candidate.SQL, question),
		Analysis:    assistant.Analyze(ctx, question, result),
		Chart:       assistant.Chart(ctx, question, result),
	}
	session.conv.Append(ctx, conversation.RoleAssistant, response.Analysis, map[string]any{
		"type": string(chat.KindQueryResult),
		"sql":  response.SQL,
	})
	writeJSON(w, http.StatusOK, response)
}

func handleClearSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	session.conv.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func handleSessionSummary(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	writeJSON(w, http.StatusOK, session.conv.Summary())
}

func handleSessionHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"history":  session.conv.FormatHistory(),
		"messages": session.conv.Messages(0),
	})
}

func handleSessionSearch(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	if text == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_TEXT_REQUIRED", "q is required", false, nil)
		return
	}
	n, err := positiveQueryInt(r, "n", defaultSearchResults)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_COUNT", err.Error(), false, nil)
		return
	}
	if n > maxSearchResults {
		n = maxSearchResults
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"matches": toSearchMatches(session.conv.SearchSimilar(r.Context(), text, n))})
}

func toSearchMatches(matches []semantic.Match) []searchMatch {
	out := make([]searchMatch, 0, len(matches))
	for _, match := range matches {
		out = append(out, searchMatch{
			Content:   match.Content,
			Score:     match.Score,
			Metadata:  match.Metadata,
			CreatedAt: match.CreatedAt,
		})
	}
	return out
}

func writeQueryError(ctx context.Context, w http.ResponseWriter, outcome pipeline.Outcome, err error) {
	extra := map[string]any{}
	if outcome.Candidate.SQL != "" {
		extra["sql"] = outcome.Candidate.SQL
	}
	var rejection *sqlguard.Rejection
	var failure *query.Failure
	switch {
	case errors.Is(err, pipeline.ErrRepairFailed):
		writeError(ctx, w, http.StatusUnprocessableEntity, "REPAIR_FAILED", err.Error(), false, extra)
	case errors.Is(err, nl2sql.ErrGenerationFailed):
		writeError(ctx, w, http.StatusBadGateway, "GENERATION_FAILED", err.Error(), true, extra)
	case errors.As(err, &rejection):
		if rejection.Keyword != "" {
			extra["keyword"] = rejection.Keyword
		}
		writeError(ctx, w, http.StatusUnprocessableEntity, "SQL_REJECTED", rejection.Reason, false, extra)
	case errors.As(err, &failure):
		writeError(ctx, w, http.StatusUnprocessableEntity, "QUERY_FAILED", failure.Message, false, extra)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "QUERY_FAILED", err.Error(), true, extra)
	}
}

func lookupSession(deps Dependencies, w http.ResponseWriter, r *http.Request) (*Session, bool) {
	if deps.Sessions == nil {
		writeSessionNotFound(w, r)
		return nil, false
	}
	session, ok := deps.Sessions.Get(r.PathValue("id"))
	if !ok || session.owner != auth.ClientFromContext(r.Context()) {
		writeSessionNotFound(w, r)
		return nil, false
	}
	return session, true
}

func loadSessionData(deps Dependencies, w http.ResponseWriter, r *http.Request, datasetID string) (*chat.Data, bool) {
	if deps.Datasets == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATASETS_NOT_CONFIGURED", "dataset catalog is not configured", false, nil)
		return nil, false
	}
	table, err := deps.Datasets.Table(r.Context(), datasetID)
	if err != nil {
		writeDatasetLookupError(w, r, datasetID, err)
		return nil, false
	}
	return chat.NewData(table), true
}

// turnContext bounds one chat or query turn. A zero timeout leaves ctx as is.
func turnContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func sessionContext(ctx context.Context, session *Session) context.Context {
	ctx = observability.ContextWithSessionID(ctx, session.ID())
	if session.datasetID != "" {
		ctx = observability.ContextWithDatasetID(ctx, session.datasetID)
	}
	return ctx
}

// assistantOrFallback returns an assistant that answers from the built-in
// defaults when none is configured.
func assistantOrFallback(deps Dependencies) *nl2sql.Assistant {
	if deps.Assistant != nil {
		return deps.Assistant
	}
	return nl2sql.NewAssistant(nil, deps.Logger)
}

func writeSessionNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": r.PathValue("id")})
}
