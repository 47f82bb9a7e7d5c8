package chat

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/datawise/datawise/internal/prompts"
	"github.com/datawise/datawise/internal/query"
)

const (
	noResultsText   = "No results found for your query."
	fallbackPairs   = 3
	missingValueTag = "N/A"
)

// Summarize turns a successful result into a short reply. Single values are
// formatted from the question wording; single rows are paraphrased by the
// completion service when it is available.
func (o *Orchestrator) Summarize(ctx context.Context, question string, result query.Result) string {
	switch {
	case result.RowCount == 0 || len(result.Rows) == 0:
		return noResultsText
	case result.RowCount == 1 && len(result.Columns) == 1:
		return FormatSingleValue(question, result.Rows[0][0])
	case result.RowCount == 1:
		return o.summarizeRow(ctx, question, result.Columns, result.Rows[0])
	default:
		return fmt.Sprintf("I found %d results for your query. Check the table below for details.", result.RowCount)
	}
}

func (o *Orchestrator) summarizeRow(ctx context.Context, question string, columns []string, row []any) string {
	if o.completion != nil && o.completion.Available() {
		text, err := o.completion.Complete(ctx, prompts.ParaphraseRow(question, columns, row))
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	parts := make([]string, 0, fallbackPairs)
	for i, value := range row {
		if i == fallbackPairs || i >= len(columns) {
			break
		}
		parts = append(parts, fmt.Sprintf("%s: %s", columns[i], rawValue(value)))
	}
	return "Here's what I found: " + strings.Join(parts, ", ")
}

// FormatSingleValue renders a one-cell answer by question keyword.
func FormatSingleValue(question string, value any) string {
	lowered := strings.ToLower(question)
	number, numeric := toFloat(value)
	switch {
	case containsAny(lowered, "how many", "count"):
		if value == nil {
			return "**The answer is: " + missingValueTag + "**"
		}
		if numeric {
			return fmt.Sprintf("**The answer is: %d**", int64(number))
		}
	case containsAny(lowered, "average", "mean"):
		if numeric {
			return fmt.Sprintf("**The average is: %.2f**", number)
		}
	case containsAny(lowered, "sum", "total"):
		if numeric {
			return "**The total is: " + humanize.FormatFloat("#,###.##", number) + "**"
		}
	}
	return "**Result: " + rawValue(value) + "**"
}

func containsAny(text string, words ...string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

func rawValue(value any) string {
	if value == nil {
		return missingValueTag
	}
	return fmt.Sprint(value)
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int64:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case *big.Int:
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
