package nl2sql

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/datawise/datawise/internal/dataset"
	"github.com/datawise/datawise/internal/query"
)

func salesTable() dataset.Table {
	return dataset.Table{
		Name: "sales",
		Columns: []dataset.Column{
			{Name: "region", StorageType: dataset.StorageObject},
			{Name: "units", StorageType: dataset.StorageInt64},
			{Name: "price", StorageType: dataset.StorageFloat64},
		},
		Rows: [][]any{
			{"north", int64(3), 9.5},
			{"south", int64(5), 4.25},
		},
	}
}

func TestExplainFallsBack(t *testing.T) {
	assistant := NewAssistant(&fakeCompletion{err: errors.New("boom")}, nil)
	if got := assistant.Explain(context.Background(), "SELECT 1", "q"); got != DefaultExplanation {
		t.Fatalf("Explain() = %q", got)
	}

	assistant = NewAssistant(&fakeCompletion{responses: []string{"  Counts rows.  "}}, nil)
	if got := assistant.Explain(context.Background(), "SELECT COUNT(*) FROM data", "how many"); got != "Counts rows." {
		t.Fatalf("Explain() = %q", got)
	}
}

func TestSuggestParsesModelList(t *testing.T) {
	fake := &fakeCompletion{responses: []string{"Here are some ideas:\n1. What is the total units?\n2) Which region sells most?\n- Average price by region\n\nThanks"}}
	got := NewAssistant(fake, nil).Suggest(context.Background(), salesTable(), 5)
	want := []string{"What is the total units?", "Which region sells most?", "Average price by region"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Suggest() = %#v, want %#v", got, want)
	}
}

func TestSuggestFallsBackToColumnQuestions(t *testing.T) {
	got := NewAssistant(&fakeCompletion{disabled: true}, nil).Suggest(context.Background(), salesTable(), 5)
	want := []string{
		"What is the average units?",
		"Show me the top 10 rows by units",
		"What is the total units by region?",
		"Show me the first 10 rows",
		"How many rows are in the dataset?",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Suggest() = %#v, want %#v", got, want)
	}
}

func TestFallbackQuestionsWithoutNumericColumns(t *testing.T) {
	table := dataset.Table{
		Columns: []dataset.Column{{Name: "name", StorageType: dataset.StorageObject}},
		Rows:    [][]any{{"a"}},
	}
	got := FallbackQuestions(table, 3)
	want := []string{"Show me the first 10 rows", "How many rows are in the dataset?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FallbackQuestions() = %#v, want %#v", got, want)
	}
	if got := FallbackQuestions(salesTable(), 2); len(got) != 2 {
		t.Fatalf("FallbackQuestions() len = %d, want 2", len(got))
	}
}

func TestAnalyze(t *testing.T) {
	assistant := NewAssistant(&fakeCompletion{disabled: true}, nil)
	if got := assistant.Analyze(context.Background(), "q", query.Result{}); got != NoResultsAnalysis {
		t.Fatalf("Analyze(empty) = %q", got)
	}
	result := query.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}, {int64(2)}}, RowCount: 2}
	if got := assistant.Analyze(context.Background(), "q", result); got != "Query returned 2 rows." {
		t.Fatalf("Analyze() = %q", got)
	}
}

func TestRecommendChart(t *testing.T) {
	many := make([][]any, 51)
	for i := range many {
		many[i] = []any{"x", int64(i)}
	}
	tests := []struct {
		name    string
		columns []string
		rows    [][]any
		want    string
	}{
		{name: "empty", columns: []string{"a", "b"}, want: ChartTable},
		{name: "too many rows", columns: []string{"a", "b"}, rows: many, want: ChartTable},
		{name: "category and number", columns: []string{"region", "total"}, rows: [][]any{{"n", 3.5}, {"s", int64(2)}}, want: ChartBar},
		{name: "date series", columns: []string{"order_date", "region", "units"}, rows: [][]any{{"2024-01-01", "n", int64(1)}}, want: ChartLine},
		{name: "two text columns", columns: []string{"a", "b"}, rows: [][]any{{"x", "y"}}, want: ChartTable},
		{name: "single column", columns: []string{"units"}, rows: [][]any{{int64(1)}}, want: ChartTable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RecommendChart(tc.columns, tc.rows); got != tc.want {
				t.Fatalf("RecommendChart() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestChartAsksModelOnlyForAmbiguousResults(t *testing.T) {
	fake := &fakeCompletion{responses: []string{"Pie."}}
	assistant := NewAssistant(fake, nil)

	bar := query.Result{Columns: []string{"region", "units"}, Rows: [][]any{{"n", int64(1)}}, RowCount: 1}
	if got := assistant.Chart(context.Background(), "q", bar); got != ChartBar {
		t.Fatalf("Chart(bar) = %q", got)
	}
	if len(fake.prompts) != 0 {
		t.Fatalf("Chart(bar) should not call the model, prompts = %d", len(fake.prompts))
	}

	ambiguous := query.Result{Columns: []string{"region", "label"}, Rows: [][]any{{"n", "x"}}, RowCount: 1}
	if got := assistant.Chart(context.Background(), "q", ambiguous); got != ChartPie {
		t.Fatalf("Chart(ambiguous) = %q, want pie", got)
	}

	fake.responses = []string{"a 3d donut"}
	if got := assistant.Chart(context.Background(), "q", ambiguous); got != ChartTable {
		t.Fatalf("Chart(unknown answer) = %q, want table", got)
	}
}
