package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/datawise/datawise/internal/dataset"
	"github.com/datawise/datawise/internal/observability"
	"github.com/datawise/datawise/internal/query"
	"github.com/datawise/datawise/internal/sqlguard"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultAlias   = "data"

	// DefaultParquetCacheSize bounds how many encoded tables Execute keeps.
	DefaultParquetCacheSize = 8
)

// Engine runs read-only SQL against a single in-memory table. Each call gets
// a fresh DuckDB database with the table bound as a view over a parquet copy.
type Engine struct {
	timeout    time.Duration
	classifier query.ColumnErrorClassifier
	logger     *slog.Logger
	parquet    *parquetCache
}

type Option func(*Engine)

func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

func WithClassifier(classifier query.ColumnErrorClassifier) Option {
	return func(e *Engine) {
		if classifier != nil {
			e.classifier = classifier
		}
	}
}

// WithParquetCacheSize sets how many encoded tables are reused across
// requests carrying a CacheKey. Zero disables the cache.
func WithParquetCacheSize(size int) Option {
	return func(e *Engine) {
		if size >= 0 {
			e.parquet = newParquetCache(size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = observability.LoggerOrDiscard(logger)
	}
}

func NewEngine(opts ...Option) *Engine {
	engine := &Engine{
		timeout:    DefaultTimeout,
		classifier: query.LooksLikeColumnError,
		logger:     observability.LoggerOrDiscard(nil),
		parquet:    newParquetCache(DefaultParquetCacheSize),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, &query.Failure{Message: sqlguard.ReasonInvalid}
	}
	if request.Table.Empty() {
		return query.Result{}, &query.Failure{Message: "dataset is empty"}
	}
	if keyword, ok := sqlguard.ForbiddenKeyword(sqlText); ok {
		return query.Result{}, &query.Failure{
			Message:          "forbidden SQL keyword: " + strings.ToUpper(keyword),
			ForbiddenKeyword: true,
		}
	}
	alias := strings.TrimSpace(request.Alias)
	if alias == "" {
		alias = DefaultAlias
	}
	rowCap := request.RowCap
	if rowCap <= 0 {
		rowCap = query.DefaultRowCap
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	start := time.Now()

	encoded, err := e.encodeTable(request.CacheKey, request.Table)
	if err != nil {
		return query.Result{}, setupFailure("prepare table", err)
	}
	workDir, err := os.MkdirTemp("", "datawise-query-")
	if err != nil {
		return query.Result{}, setupFailure("create query temp dir", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath, err := writeTableParquet(workDir, encoded)
	if err != nil {
		return query.Result{}, setupFailure("prepare table", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, setupFailure("open duckdb", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, bindViewSQL(alias, localPath, request.Table.Columns)); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return query.Result{}, e.failure(ctx, err)
		}
		return query.Result{}, setupFailure(fmt.Sprintf("bind table %q", alias), err)
	}

	// One extra row tells us whether the cap truncated the result.
	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowCap+1)
	rows, err := db.QueryContext(ctx, wrapped)
	if err != nil {
		return query.Result{}, e.failure(ctx, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, e.failure(ctx, err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return query.Result{}, e.failure(ctx, err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, e.failure(ctx, err)
	}

	truncated := len(resultRows) > rowCap
	if truncated {
		resultRows = resultRows[:rowCap]
	}
	elapsed := time.Since(start)
	observability.ObserveQueryDuration(elapsed)
	e.logger.DebugContext(ctx, "query executed",
		slog.Int("rows", len(resultRows)),
		slog.Bool("truncated", truncated),
		slog.Duration("duration", elapsed),
	)

	return query.Result{
		Columns:   columns,
		Rows:      resultRows,
		RowCount:  len(resultRows),
		Truncated: truncated,
		Duration:  elapsed,
	}, nil
}

func (e *Engine) failure(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &query.Failure{Message: fmt.Sprintf("query timed out after %s", e.timeout), Cause: err}
	}
	message := err.Error()
	return &query.Failure{Message: message, ColumnError: e.classifier(message), Cause: err}
}

// setupFailure reports errors raised before the statement runs. They are
// never column errors.
func setupFailure(step string, err error) error {
	return &query.Failure{Message: fmt.Sprintf("%s: %v", step, err), Cause: err}
}

// bindViewSQL exposes the parquet copy under alias with the table's column
// order. Datetime columns are cast back to naive timestamps.
func bindViewSQL(alias, path string, columns []dataset.Column) string {
	projections := make([]string, 0, len(columns))
	for _, column := range columns {
		ident := quoteIdent(column.Name)
		if column.StorageType == dataset.StorageDatetime {
			projections = append(projections, fmt.Sprintf("CAST(%s AS TIMESTAMP) AS %s", ident, ident))
			continue
		}
		projections = append(projections, ident)
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT %s FROM read_parquet(%s)",
		quoteIdent(alias), strings.Join(projections, ", "), quoteString(path))
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
