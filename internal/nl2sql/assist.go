package nl2sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datawise/datawise/internal/completion"
	"github.com/datawise/datawise/internal/dataset"
	"github.com/datawise/datawise/internal/observability"
	"github.com/datawise/datawise/internal/prompts"
	"github.com/datawise/datawise/internal/query"
	"github.com/datawise/datawise/internal/schema"
)

const (
	DefaultExplanation = "This query retrieves the requested data from the dataset."
	NoResultsAnalysis  = "No results found for this query."

	maxChartRows       = 50
	sampleRowsForModel = 3
)

// Chart types understood by clients.
const (
	ChartBar     = "bar"
	ChartLine    = "line"
	ChartPie     = "pie"
	ChartScatter = "scatter"
	ChartTable   = "table"
)

// Assistant produces the prose around a query: explanations, suggested
// questions, result summaries and chart hints. Every method degrades to a
// fixed fallback when the completion service produces nothing.
type Assistant struct {
	completion completion.Service
	logger     *slog.Logger
}

func NewAssistant(service completion.Service, logger *slog.Logger) *Assistant {
	return &Assistant{completion: service, logger: observability.LoggerOrDiscard(logger)}
}

func (a *Assistant) Explain(ctx context.Context, sqlText, question string) string {
	text, ok := a.complete(ctx, "explain", prompts.ExplainSQL(sqlText, question))
	if !ok {
		return DefaultExplanation
	}
	return text
}

// Suggest returns up to n questions for the table, falling back to
// questions derived from the column types.
func (a *Assistant) Suggest(ctx context.Context, table dataset.Table, n int) []string {
	if n <= 0 {
		n = 5
	}
	sch := schema.Infer(table)
	text, ok := a.complete(ctx, "suggest", prompts.SuggestQuestions(sch, table.ColumnNames(), table.Head(sampleRowsForModel), n))
	if ok {
		if questions := ParseSuggestions(text); len(questions) > 0 {
			if len(questions) > n {
				questions = questions[:n]
			}
			return questions
		}
	}
	return FallbackQuestions(table, n)
}

func (a *Assistant) Analyze(ctx context.Context, question string, result query.Result) string {
	if result.RowCount == 0 {
		return NoResultsAnalysis
	}
	text, ok := a.complete(ctx, "analyze", prompts.AnalyzeResults(question, result.Columns, result.Rows, result.RowCount))
	if !ok {
		return fmt.Sprintf("Query returned %d rows.", result.RowCount)
	}
	return text
}

// Chart applies RecommendChart and, when the heuristic has nothing better
// than a table for a small multi-column result, asks the model.
func (a *Assistant) Chart(ctx context.Context, question string, result query.Result) string {
	chart := RecommendChart(result.Columns, result.Rows)
	if chart != ChartTable || result.RowCount == 0 || result.RowCount > maxChartRows || len(result.Columns) < 2 {
		return chart
	}
	text, ok := a.complete(ctx, "chart", prompts.ChartRecommendation(question, result.Columns, result.RowCount))
	if !ok {
		return chart
	}
	switch answer := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".`\"'")); answer {
	case ChartBar, ChartLine, ChartPie, ChartScatter, ChartTable:
		return answer
	default:
		return chart
	}
}

func (a *Assistant) complete(ctx context.Context, task, prompt string) (string, bool) {
	if a.completion == nil || !a.completion.Available() {
		return "", false
	}
	text, err := a.completion.Complete(ctx, prompt)
	if err != nil {
		a.logger.InfoContext(ctx, "completion fallback", slog.String("task", task), slog.String("error", err.Error()))
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

// ParseSuggestions keeps numbered or bulleted lines and strips the markers.
func ParseSuggestions(text string) []string {
	var questions []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first := line[0]
		if (first < '0' || first > '9') && first != '-' && first != '*' {
			continue
		}
		cleaned := strings.TrimSpace(strings.TrimLeft(line, "0123456789.-*) "))
		if cleaned != "" {
			questions = append(questions, cleaned)
		}
	}
	return questions
}

// FallbackQuestions derives up to n generic questions from the first
// numeric and first text column.
func FallbackQuestions(table dataset.Table, n int) []string {
	var numeric, text string
	for _, column := range table.Columns {
		switch column.StorageType {
		case dataset.StorageInt64, dataset.StorageFloat64:
			if numeric == "" {
				numeric = column.Name
			}
		case dataset.StorageObject:
			if text == "" {
				text = column.Name
			}
		}
	}

	var questions []string
	if numeric != "" {
		questions = append(questions,
			fmt.Sprintf("What is the average %s?", numeric),
			fmt.Sprintf("Show me the top 10 rows by %s", numeric),
		)
	}
	if numeric != "" && text != "" {
		questions = append(questions, fmt.Sprintf("What is the total %s by %s?", numeric, text))
	}
	if table.RowCount() > 0 {
		questions = append(questions, "Show me the first 10 rows", "How many rows are in the dataset?")
	}
	if n <= 0 || n > 5 {
		n = 5
	}
	if len(questions) > n {
		questions = questions[:n]
	}
	return questions
}

// RecommendChart picks a chart type from the result shape alone.
func RecommendChart(columns []string, rows [][]any) string {
	if len(rows) == 0 || len(rows) > maxChartRows {
		return ChartTable
	}
	if len(columns) == 2 && columnIsNumeric(rows, 1) {
		return ChartBar
	}
	if len(columns) > 1 && strings.Contains(strings.ToLower(columns[0]), "date") {
		return ChartLine
	}
	return ChartTable
}

func columnIsNumeric(rows [][]any, index int) bool {
	seen := false
	for _, row := range rows {
		if index >= len(row) || row[index] == nil {
			continue
		}
		switch row[index].(type) {
		case int64, float64, int, int32, float32:
			seen = true
		default:
			return false
		}
	}
	return seen
}
