// Package pipeline runs a question through synthesis, the guard and the
// engine, with at most one repair attempt after a column error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/datawise/datawise/internal/dataset"
	"github.com/datawise/datawise/internal/nl2sql"
	"github.com/datawise/datawise/internal/observability"
	"github.com/datawise/datawise/internal/query"
	"github.com/datawise/datawise/internal/schema"
	"github.com/datawise/datawise/internal/sqlguard"
)

var ErrRepairFailed = errors.New("could not fix the query")

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// QueryRecord is the audit row written after every run.
type QueryRecord struct {
	ConversationID string
	DatasetID      string
	Question       string
	SQL            string
	Status         string
	ExecutionTime  time.Duration
	ResultRows     int
	ErrorMessage   string
	Repaired       bool
}

type QueryRecorder interface {
	RecordQuery(ctx context.Context, record QueryRecord) error
}

type Outcome struct {
	Candidate nl2sql.Candidate
	Result    query.Result
	Repaired  bool
}

type Config struct {
	Alias    string
	RowCap   int
	Recorder QueryRecorder
	Logger   *slog.Logger
}

type Pipeline struct {
	synth    *nl2sql.Synthesizer
	engine   query.Engine
	alias    string
	rowCap   int
	recorder QueryRecorder
	logger   *slog.Logger
}

func New(synth *nl2sql.Synthesizer, engine query.Engine, cfg Config) *Pipeline {
	alias := cfg.Alias
	if alias == "" {
		alias = "data"
	}
	rowCap := cfg.RowCap
	if rowCap <= 0 {
		rowCap = query.DefaultRowCap
	}
	return &Pipeline{
		synth:    synth,
		engine:   engine,
		alias:    alias,
		rowCap:   rowCap,
		recorder: cfg.Recorder,
		logger:   observability.LoggerOrDiscard(cfg.Logger),
	}
}

func (p *Pipeline) Alias() string {
	return p.alias
}

// Run synthesizes SQL for question and executes it against table. A column
// error triggers exactly one repair; whatever the second execution returns
// is final.
func (p *Pipeline) Run(ctx context.Context, question string, table dataset.Table, sch schema.Schema) (Outcome, error) {
	started := time.Now()
	outcome, err := p.run(ctx, question, table, sch)
	p.observe(ctx, table, question, outcome, err, time.Since(started))
	return outcome, err
}

func (p *Pipeline) run(ctx context.Context, question string, table dataset.Table, sch schema.Schema) (Outcome, error) {
	candidate, err := p.synth.Synthesize(ctx, question, sch, p.alias)
	if err != nil {
		return Outcome{}, err
	}

	result, err := p.execute(ctx, candidate, table)
	if err == nil {
		return Outcome{Candidate: candidate, Result: result}, nil
	}
	var failure *query.Failure
	if !errors.As(err, &failure) || !failure.ColumnError {
		return Outcome{Candidate: candidate}, err
	}

	observability.IncrementQueryRepair()
	p.logger.InfoContext(ctx, "repairing query after column error", slog.String("sql", candidate.SQL), slog.String("error", failure.Message))
	repaired, err := p.synth.Repair(ctx, candidate, failure.Message, sch)
	if err != nil {
		return Outcome{Candidate: candidate, Repaired: true}, fmt.Errorf("%w: %w", ErrRepairFailed, err)
	}
	result, err = p.execute(ctx, repaired, table)
	if err != nil {
		return Outcome{Candidate: repaired, Repaired: true}, fmt.Errorf("%w: %w", ErrRepairFailed, err)
	}
	return Outcome{Candidate: repaired, Result: result, Repaired: true}, nil
}

func (p *Pipeline) execute(ctx context.Context, candidate nl2sql.Candidate, table dataset.Table) (query.Result, error) {
	if err := sqlguard.Validate(candidate.SQL); err != nil {
		var rejection *sqlguard.Rejection
		if errors.As(err, &rejection) && rejection.Keyword != "" {
			observability.IncrementGuardRejection(rejection.Keyword)
		}
		return query.Result{}, err
	}
	return p.engine.Execute(ctx, query.Request{
		SQL:      candidate.SQL,
		Table:    table,
		Alias:    p.alias,
		RowCap:   p.rowCap,
		CacheKey: observability.DatasetIDFromContext(ctx),
	})
}

func (p *Pipeline) observe(ctx context.Context, table dataset.Table, question string, outcome Outcome, err error, elapsed time.Duration) {
	observability.ObserveQuery(outcomeLabel(outcome, err))

	datasetID := observability.DatasetIDFromContext(ctx)
	if datasetID == "" {
		datasetID = table.Name
	}
	record := QueryRecord{
		ConversationID: observability.SessionIDFromContext(ctx),
		DatasetID:      datasetID,
		Question:       question,
		SQL:            outcome.Candidate.SQL,
		Status:         StatusSuccess,
		ExecutionTime:  elapsed,
		ResultRows:     outcome.Result.RowCount,
		Repaired:       outcome.Repaired,
	}
	if err != nil {
		record.Status = StatusError
		record.ErrorMessage = err.Error()
		p.logger.InfoContext(ctx, "query run failed", append(observability.RequestAttrs(ctx), slog.String("error", err.Error()))...)
	}
	if p.recorder == nil {
		return
	}
	if recordErr := p.recorder.RecordQuery(ctx, record); recordErr != nil {
		p.logger.WarnContext(ctx, "failed to record query", slog.String("error", recordErr.Error()))
	}
}

func outcomeLabel(outcome Outcome, err error) string {
	var rejection *sqlguard.Rejection
	switch {
	case err == nil && outcome.Repaired:
		return observability.QueryOutcomeRepaired
	case err == nil:
		return observability.QueryOutcomeSuccess
	case errors.Is(err, ErrRepairFailed):
		return observability.QueryOutcomeRepairFailed
	case errors.Is(err, nl2sql.ErrGenerationFailed):
		return observability.QueryOutcomeGenerationFailed
	case errors.As(err, &rejection):
		return observability.QueryOutcomeRejected
	default:
		return observability.QueryOutcomeFailed
	}
}
