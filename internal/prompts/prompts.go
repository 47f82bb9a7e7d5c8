// Package prompts renders the instruction text sent to the completion service.
// All builders are pure.
package prompts

import (
	"fmt"
	"strings"

	"github.com/datawise/datawise/internal/schema"
)

const (
	sampleRowsForSuggestions = 3
	sampleRowsForAnalysis    = 5
)

// NLToSQL asks for a single query answering question against table.
func NLToSQL(question string, s schema.Schema, table string) string {
	var b strings.Builder
	b.WriteString("You translate questions about a single table into one DuckDB SQL query (PostgreSQL-like syntax).\n\n")
	b.WriteString("Table: " + table + "\n")
	b.WriteString("Columns:\n")
	for _, name := range s.Columns() {
		fmt.Fprintf(&b, "- %s: %s\n", name, s[name])
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n\n", strings.TrimSpace(question))
	b.WriteString("Rules:\n")
	b.WriteString("1. Output the SQL query only. No prose, no explanation.\n")
	b.WriteString("2. Do not wrap the query in markdown or code fences.\n")
	fmt.Fprintf(&b, "3. Query only the table named '%s'.\n", table)
	b.WriteString("4. Prefer standard SELECT with WHERE, GROUP BY and ORDER BY.\n")
	b.WriteString("5. Use SUM, AVG, COUNT, MIN or MAX when the question asks for an aggregate.\n")
	b.WriteString("6. Compare dates as dates when the question is about time.\n")
	b.WriteString("7. Add a LIMIT when the question asks for the top or bottom N rows.\n\n")
	b.WriteString("SQL:")
	return b.String()
}

// FixSQL asks for a corrected query. The column names and error text are
// passed through verbatim.
func FixSQL(sqlText, errorText string, s schema.Schema) string {
	var b strings.Builder
	b.WriteString("The following SQL query failed. Return a corrected query.\n\n")
	b.WriteString("Query:\n" + strings.TrimSpace(sqlText) + "\n\n")
	b.WriteString("Error:\n" + errorText + "\n\n")
	b.WriteString("Columns: " + strings.Join(s.Columns(), ", ") + "\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Fix the cause named in the error.\n")
	b.WriteString("2. Column names must match the list above exactly, including case.\n")
	b.WriteString("3. Keep standard SQL syntax (SELECT, GROUP BY, ORDER BY, LIMIT).\n")
	b.WriteString("4. Output the corrected SQL query only, without markdown fences or explanation.\n\n")
	b.WriteString("SQL:")
	return b.String()
}

func ExplainSQL(sqlText, question string) string {
	return fmt.Sprintf(`Explain this SQL query to someone who does not read SQL.

Question: %s

Query: %s

Answer in one or two sentences of plain language. Describe what the query finds, not how the syntax works.

Explanation:`, strings.TrimSpace(question), strings.TrimSpace(sqlText))
}

// SuggestQuestions asks for count numbered questions grounded in the columns
// and a few sample rows.
func SuggestQuestions(s schema.Schema, columns []string, sampleRows [][]any, count int) string {
	if count <= 0 {
		count = 5
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest %d questions a user could ask about this dataset.\n\n", count)
	b.WriteString("Columns: " + strings.Join(s.Columns(), ", ") + "\n\n")
	b.WriteString("Sample rows:\n")
	for _, row := range head(sampleRows, sampleRowsForSuggestions) {
		b.WriteString(FormatRow(columns, row) + "\n")
	}
	b.WriteString("\nRules:\n")
	b.WriteString("1. Every question must be answerable from the listed columns.\n")
	b.WriteString("2. Mix aggregates (totals, averages, counts) with comparisons (top, bottom, which).\n")
	b.WriteString("3. Include a trend question when a date column exists.\n")
	b.WriteString("4. Answer as a numbered list, one question per line.\n\n")
	b.WriteString("Questions:")
	return b.String()
}

func AnalyzeResults(question string, columns []string, rows [][]any, rowCount int) string {
	var b strings.Builder
	b.WriteString("Summarize these query results for a non-technical reader.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(question))
	fmt.Fprintf(&b, "Results (%d rows):\n", rowCount)
	for _, row := range head(rows, sampleRowsForAnalysis) {
		b.WriteString(FormatRow(columns, row) + "\n")
	}
	b.WriteString("\nWrite two or three sentences. Quote concrete numbers from the results and lead with the most important finding.\n\n")
	b.WriteString("Summary:")
	return b.String()
}

func ChartRecommendation(question string, columns []string, rowCount int) string {
	return fmt.Sprintf(`Pick the chart that best shows these query results.

Question: %s
Result columns: %s
Rows: %d

Options: bar (compare categories), line (trend over time), pie (share of a whole), scatter (relationship between two measures), table (detail).

Reply with exactly one word from: bar, line, pie, scatter, table.

Chart:`, strings.TrimSpace(question), strings.Join(columns, ", "), rowCount)
}

// Conversation renders a free-form chat turn, with prior turns when available.
func Conversation(message, history string) string {
	if strings.TrimSpace(history) == "" {
		return fmt.Sprintf(`You are a friendly data analysis assistant. Reply briefly (two or three sentences).

User: %s`, message)
	}
	return fmt.Sprintf(`You are a friendly data analysis assistant. Continue the conversation.

Previous conversation:
%s

User: %s

Reply briefly (two or three sentences).`, history, message)
}

// ParaphraseRow asks for a one-sentence answer built from a single result row.
func ParaphraseRow(question string, columns []string, row []any) string {
	return fmt.Sprintf(`Turn this query result into a natural answer.

Question: %s
Result: %s

Answer in a single friendly sentence. Do not mention column names or technical terms.`, strings.TrimSpace(question), FormatRow(columns, row))
}

// FormatRow renders a row as {col: value, ...} in column order.
func FormatRow(columns []string, row []any) string {
	parts := make([]string, 0, len(row))
	for i, value := range row {
		name := fmt.Sprintf("col%d", i)
		if i < len(columns) {
			name = columns[i]
		}
		parts = append(parts, fmt.Sprintf("%s: %v", name, displayValue(value)))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func displayValue(value any) any {
	if value == nil {
		return "null"
	}
	return value
}

func head(rows [][]any, n int) [][]any {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}
