package query

import "testing"

func TestLooksLikeColumnErrorPinnedSignatures(t *testing.T) {
	matches := []string{
		`Binder Error: Referenced column "regoin" not found in FROM clause!`,
		"no such column: revenue",
		"Column not found: total",
		"Catalog Error: could not find column x",
		"Unknown column 'x' in 'field list'",
		"no such field: amount",
		"Field not found in struct",
		"Binder Error: column \"x\" must appear in the GROUP BY clause",
	}
	for _, message := range matches {
		if !LooksLikeColumnError(message) {
			t.Fatalf("LooksLikeColumnError(%q) = false", message)
		}
	}

	misses := []string{
		`Parser Error: syntax error at or near "FORM"`,
		"Conversion Error: Could not convert string 'abc' to INT32",
		"Binder Error: No function matches the given name",
		"Catalog Error: Table with name sales does not exist!",
		"",
	}
	for _, message := range misses {
		if LooksLikeColumnError(message) {
			t.Fatalf("LooksLikeColumnError(%q) = true", message)
		}
	}
}

func TestStripTrailingSemicolons(t *testing.T) {
	tests := map[string]string{
		"SELECT 1;":       "SELECT 1",
		"  SELECT 1 ; ; ": "SELECT 1",
		"SELECT ';' AS s": "SELECT ';' AS s",
		"":                "",
	}
	for in, want := range tests {
		if got := StripTrailingSemicolons(in); got != want {
			t.Fatalf("StripTrailingSemicolons(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFailureImplementsError(t *testing.T) {
	var err error = &Failure{Message: "dataset is empty"}
	if err.Error() != "dataset is empty" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
