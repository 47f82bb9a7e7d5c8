// Package sqlguard screens candidate SQL before it reaches the engine.
//
// The denylist is a case-insensitive substring scan, not a parser: a keyword
// inside a literal or a longer identifier (updated_at, created_by) is also
// rejected. Tightening it to token boundaries would change which queries are
// accepted, so the coarse behavior is kept deliberately.
package sqlguard

import (
	"fmt"
	"strings"
)

// KeywordSetVersion identifies the denylist below. Bump it when the list changes.
const KeywordSetVersion = 1

var forbiddenKeywords = []string{"drop", "delete", "truncate", "insert", "update", "alter", "create"}

const (
	ReasonInvalid   = "invalid query"
	ReasonNotSelect = "must start with SELECT"
	reasonForbidden = "forbidden SQL keyword"
	selectStatement = "select"
)

// Rejection describes why a candidate was refused. Keyword is set only for
// denylist hits and holds the upper-cased keyword.
type Rejection struct {
	Reason  string
	Keyword string
}

func (r *Rejection) Error() string {
	return r.Reason
}

// Keywords returns a copy of the denylist.
func Keywords() []string {
	out := make([]string, len(forbiddenKeywords))
	copy(out, forbiddenKeywords)
	return out
}

// Validate applies the rules in order: empty text, denylist, SELECT prefix.
func Validate(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return &Rejection{Reason: ReasonInvalid}
	}
	if keyword, ok := ForbiddenKeyword(trimmed); ok {
		upper := strings.ToUpper(keyword)
		return &Rejection{Reason: fmt.Sprintf("%s: %s", reasonForbidden, upper), Keyword: upper}
	}
	if !strings.HasPrefix(strings.ToLower(trimmed), selectStatement) {
		return &Rejection{Reason: ReasonNotSelect}
	}
	return nil
}

// ForbiddenKeyword reports the first denylisted keyword found in text.
func ForbiddenKeyword(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, keyword := range forbiddenKeywords {
		if strings.Contains(lowered, keyword) {
			return keyword, true
		}
	}
	return "", false
}
