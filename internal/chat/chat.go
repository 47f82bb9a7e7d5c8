// Package chat routes conversational messages to the query pipeline, the
// completion service or the built-in help text.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datawise/datawise/internal/completion"
	"github.com/datawise/datawise/internal/conversation"
	"github.com/datawise/datawise/internal/dataset"
	"github.com/datawise/datawise/internal/nl2sql"
	"github.com/datawise/datawise/internal/observability"
	"github.com/datawise/datawise/internal/pipeline"
	"github.com/datawise/datawise/internal/prompts"
	"github.com/datawise/datawise/internal/query"
	"github.com/datawise/datawise/internal/schema"
)

type Kind string

const (
	KindQueryResult Kind = "query_result"
	KindChat        Kind = "chat"
	KindHelp        Kind = "help"
	KindError       Kind = "error"
)

const (
	DefaultQueryContextEntries = 3
	DefaultChatContextEntries  = 5

	generationFailedText = "I couldn't generate a query from your message. Can you rephrase it?"
	chatFallbackText     = "I'm here to help you analyze your data! Upload a dataset and ask me questions about it."
)

type Response struct {
	Kind      Kind     `json:"type"`
	Content   string   `json:"content"`
	SQL       string   `json:"sql,omitempty"`
	Columns   []string `json:"columns,omitempty"`
	Rows      [][]any  `json:"rows,omitempty"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated,omitempty"`
	Repaired  bool     `json:"repaired,omitempty"`
	Chart     string   `json:"chart,omitempty"`
}

// Data is a loaded table with its schema derived once.
type Data struct {
	Table  dataset.Table
	Schema schema.Schema
}

func NewData(table dataset.Table) *Data {
	return &Data{Table: table, Schema: schema.Infer(table)}
}

type QueryRunner interface {
	Run(ctx context.Context, question string, table dataset.Table, sch schema.Schema) (pipeline.Outcome, error)
}

type Config struct {
	QueryContextEntries int
	ChatContextEntries  int
	Logger              *slog.Logger
}

type Orchestrator struct {
	runner       QueryRunner
	completion   completion.Service
	assistant    *nl2sql.Assistant
	queryEntries int
	chatEntries  int
	logger       *slog.Logger
}

func NewOrchestrator(runner QueryRunner, service completion.Service, cfg Config) *Orchestrator {
	queryEntries := cfg.QueryContextEntries
	if queryEntries <= 0 {
		queryEntries = DefaultQueryContextEntries
	}
	chatEntries := cfg.ChatContextEntries
	if chatEntries <= 0 {
		chatEntries = DefaultChatContextEntries
	}
	return &Orchestrator{
		runner:       runner,
		completion:   service,
		assistant:    nl2sql.NewAssistant(service, cfg.Logger),
		queryEntries: queryEntries,
		chatEntries:  chatEntries,
		logger:       observability.LoggerOrDiscard(cfg.Logger),
	}
}

// Handle processes one message: the user turn is recorded, the intent is
// classified and dispatched, and the reply is recorded before returning.
// data may be nil when no dataset is loaded.
func (o *Orchestrator) Handle(ctx context.Context, conv *conversation.Context, message string, data *Data, useContext bool) Response {
	conv.Append(ctx, conversation.RoleUser, message, nil)

	intent := conversation.ClassifyIntent(message, data != nil)
	observability.ObserveChatMessage(string(intent))
	o.logger.DebugContext(ctx, "chat message classified",
		slog.String("intent", string(intent)),
		slog.Int("keyword_set_version", conversation.KeywordSetVersion),
	)

	var response Response
	switch intent {
	case conversation.IntentQuery:
		response = o.handleQuery(ctx, conv, message, data, useContext)
	case conversation.IntentHelp:
		response = Response{Kind: KindHelp, Content: HelpText}
	default:
		response = o.handleChat(ctx, conv, message, useContext)
	}

	conv.Append(ctx, conversation.RoleAssistant, response.Content, map[string]any{"type": string(response.Kind)})
	return response
}

func (o *Orchestrator) handleQuery(ctx context.Context, conv *conversation.Context, message string, data *Data, useContext bool) Response {
	question := message
	if useContext && conv.HasContext() {
		question = fmt.Sprintf("Previous conversation:\n%s\n\nCurrent question: %s", conv.Render(o.queryEntries), message)
	}

	outcome, err := o.runner.Run(ctx, question, data.Table, data.Schema)
	if err != nil {
		if errors.Is(err, nl2sql.ErrGenerationFailed) && !errors.Is(err, pipeline.ErrRepairFailed) {
			return Response{Kind: KindError, Content: generationFailedText}
		}
		return Response{
			Kind:    KindError,
			Content: fmt.Sprintf("Query failed: %s. Would you like to try rephrasing?", failureText(err)),
			SQL:     outcome.Candidate.SQL,
		}
	}

	result := outcome.Result
	return Response{
		Kind:      KindQueryResult,
		Content:   o.Summarize(ctx, message, result),
		SQL:       outcome.Candidate.SQL,
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
		Repaired:  outcome.Repaired,
		Chart:     nl2sql.RecommendChart(result.Columns, result.Rows),
	}
}

func (o *Orchestrator) handleChat(ctx context.Context, conv *conversation.Context, message string, useContext bool) Response {
	history := ""
	if useContext && conv.HasContext() {
		history = conv.Render(o.chatEntries)
	}
	if o.completion == nil || !o.completion.Available() {
		return Response{Kind: KindChat, Content: chatFallbackText}
	}
	text, err := o.completion.Complete(ctx, prompts.Conversation(message, history))
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			o.logger.InfoContext(ctx, "chat completion fallback", slog.String("error", err.Error()))
		}
		return Response{Kind: KindChat, Content: chatFallbackText}
	}
	return Response{Kind: KindChat, Content: strings.TrimSpace(text)}
}

// Explain describes a statement in plain language.
func (o *Orchestrator) Explain(ctx context.Context, sqlText, question string) string {
	return o.assistant.Explain(ctx, sqlText, question)
}

// Suggestions proposes questions for the loaded table.
func (o *Orchestrator) Suggestions(ctx context.Context, data *Data, n int) []string {
	if data == nil {
		return nil
	}
	return o.assistant.Suggest(ctx, data.Table, n)
}

// SuggestedFollowups returns generic follow-up prompts for a query result.
func SuggestedFollowups() []string {
	return []string{
		"Show me more details",
		"What about the top 5?",
		"Can you visualize this?",
	}
}

// failureText keeps the repair prefix so a failed fix reads as such.
func failureText(err error) string {
	if errors.Is(err, pipeline.ErrRepairFailed) {
		return err.Error()
	}
	var failure *query.Failure
	if errors.As(err, &failure) {
		return failure.Message
	}
	return err.Error()
}
