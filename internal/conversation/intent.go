package conversation

import "strings"

type Intent string

const (
	IntentQuery Intent = "query"
	IntentChat  Intent = "chat"
	IntentHelp  Intent = "help"
)

// KeywordSetVersion changes whenever the keyword lists below change, so
// logged intents can be compared across releases.
const KeywordSetVersion = 1

var helpKeywords = []string{"help", "how to", "what can you", "guide"}

var queryKeywords = []string{
	// actions
	"show", "display", "list", "get", "find", "filter", "select",
	// questions
	"what", "which", "who", "where", "when", "whose",
	// aggregations
	"how many", "count", "sum", "total", "average", "mean", "median",
	// comparisons
	"top", "bottom", "highest", "lowest", "max", "min", "maximum", "minimum",
	"greater", "less", "more", "fewer", "older", "younger", "bigger", "smaller",
	// exploration
	"rows", "columns", "all", "every", "each", "first", "last",
	// conditions
	"with", "having", "contain", "include", "exclude",
}

// ClassifyIntent routes a message by case-insensitive substring match.
// Help wins over query; query needs a loaded table; anything else is chat.
func ClassifyIntent(message string, hasTable bool) Intent {
	lowered := strings.ToLower(message)
	if containsAny(lowered, helpKeywords) {
		return IntentHelp
	}
	if hasTable && containsAny(lowered, queryKeywords) {
		return IntentQuery
	}
	return IntentChat
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
