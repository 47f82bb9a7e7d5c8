// Package nl2sql turns questions into SQL candidates and produces the
// surrounding explanations, suggestions and summaries.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datawise/datawise/internal/completion"
	"github.com/datawise/datawise/internal/observability"
	"github.com/datawise/datawise/internal/prompts"
	"github.com/datawise/datawise/internal/schema"
)

var ErrGenerationFailed = errors.New("could not generate a query")

// Candidate is an unexecuted SQL statement. SQL never carries markdown
// fencing or a trailing semicolon.
type Candidate struct {
	SQL        string `json:"sql"`
	Question   string `json:"question"`
	PriorSQL   string `json:"prior_sql,omitempty"`
	PriorError string `json:"prior_error,omitempty"`
}

type Synthesizer struct {
	completion completion.Service
	logger     *slog.Logger
}

func NewSynthesizer(service completion.Service, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{completion: service, logger: observability.LoggerOrDiscard(logger)}
}

func (s *Synthesizer) Synthesize(ctx context.Context, question string, sch schema.Schema, table string) (Candidate, error) {
	sqlText, err := s.generate(ctx, prompts.NLToSQL(question, sch, table))
	if err != nil {
		return Candidate{}, err
	}
	s.logger.DebugContext(ctx, "sql synthesized", slog.String("sql", sqlText))
	return Candidate{SQL: sqlText, Question: question}, nil
}

// Repair asks for a corrected statement given the failing candidate and the
// literal engine error.
func (s *Synthesizer) Repair(ctx context.Context, prior Candidate, errorText string, sch schema.Schema) (Candidate, error) {
	sqlText, err := s.generate(ctx, prompts.FixSQL(prior.SQL, errorText, sch))
	if err != nil {
		return Candidate{}, err
	}
	s.logger.DebugContext(ctx, "sql repaired", slog.String("prior_sql", prior.SQL), slog.String("sql", sqlText))
	return Candidate{
		SQL:        sqlText,
		Question:   prior.Question,
		PriorSQL:   prior.SQL,
		PriorError: errorText,
	}, nil
}

func (s *Synthesizer) generate(ctx context.Context, prompt string) (string, error) {
	if s.completion == nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, completion.ErrUnavailable)
	}
	raw, err := s.completion.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	sqlText := NormalizeSQL(raw)
	if sqlText == "" {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, completion.ErrEmptyResponse)
	}
	return sqlText, nil
}

// NormalizeSQL strips a leading ```sql or ``` marker, a trailing ``` marker,
// surrounding whitespace and one trailing semicolon.
func NormalizeSQL(raw string) string {
	text := strings.TrimSpace(raw)
	switch {
	case len(text) >= 6 && strings.EqualFold(text[:6], "```sql"):
		text = text[6:]
	case strings.HasPrefix(text, "```"):
		text = text[3:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, ";")
	return strings.TrimSpace(text)
}
