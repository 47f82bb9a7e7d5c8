package query

import (
	"context"
	"strings"
	"time"

	"github.com/datawise/datawise/internal/dataset"
)

const DefaultRowCap = 10000

type Request struct {
	SQL    string
	Table  dataset.Table
	Alias  string
	RowCap int
	// CacheKey names an immutable table, usually its dataset id. Engines may
	// reuse prepared copies of the table under it. Empty disables reuse.
	CacheKey string
}

type Result struct {
	Columns   []string      `json:"columns"`
	Rows      [][]any       `json:"rows"`
	RowCount  int           `json:"row_count"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"-"`
}

// Failure is returned for every rejected or failed execution.
type Failure struct {
	Message          string
	ForbiddenKeyword bool
	ColumnError      bool
	Cause            error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// ColumnErrorClassifier decides whether an execution error names a missing
// column, which is the only failure worth a repair attempt.
type ColumnErrorClassifier func(message string) bool

// columnErrorSignatures are matched case-insensitively against engine errors.
var columnErrorSignatures = []string{
	"no such column",
	"column not found",
	"referenced column",
	"not found in from clause",
	"could not find column",
	"unknown column",
	"no such field",
	"field not found",
}

// LooksLikeColumnError is the default ColumnErrorClassifier.
func LooksLikeColumnError(message string) bool {
	lowered := strings.ToLower(message)
	for _, signature := range columnErrorSignatures {
		if strings.Contains(lowered, signature) {
			return true
		}
	}
	return strings.Contains(lowered, "binder error") && strings.Contains(lowered, "column")
}

// StripTrailingSemicolons trims text and removes any trailing semicolons.
func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
