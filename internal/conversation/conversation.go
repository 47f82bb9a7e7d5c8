// Package conversation keeps the sliding window of chat messages for one
// session and mirrors it to the metadata and semantic stores.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datawise/datawise/internal/observability"
	"github.com/datawise/datawise/internal/semantic"
)

const (
	DefaultMaxMessages = 10
	DefaultTitle       = "New Chat"

	historyPreviewLength = 100
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Summary struct {
	ConversationID    string     `json:"conversation_id,omitempty"`
	MessageCount      int        `json:"message_count"`
	UserMessages      int        `json:"user_messages"`
	AssistantMessages int        `json:"assistant_messages"`
	FirstMessageTime  *time.Time `json:"first_message_time,omitempty"`
	LastMessageTime   *time.Time `json:"last_message_time,omitempty"`
}

// MessageStore persists conversations and their messages.
type MessageStore interface {
	CreateConversation(ctx context.Context, id, title string) error
	SaveMessage(ctx context.Context, conversationID string, message Message) error
}

type Options struct {
	MaxMessages int
	Store       MessageStore
	Index       semantic.Store
	Logger      *slog.Logger
	Now         func() time.Time
}

// Context is owned by a single session and is not safe for concurrent use.
type Context struct {
	id          string
	messages    []Message
	maxMessages int
	store       MessageStore
	index       semantic.Store
	logger      *slog.Logger
	now         func() time.Time
}

func New(opts Options) *Context {
	maxMessages := opts.MaxMessages
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Context{
		maxMessages: maxMessages,
		store:       opts.Store,
		index:       opts.Index,
		logger:      observability.LoggerOrDiscard(opts.Logger),
		now:         now,
	}
}

func (c *Context) ID() string {
	return c.id
}

// Start begins a new conversation with an empty window and returns its id.
func (c *Context) Start(ctx context.Context, title string) string {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	c.id = uuid.NewString()
	c.messages = nil
	if c.store != nil {
		if err := c.store.CreateConversation(ctx, c.id, title); err != nil {
			c.logger.WarnContext(ctx, "could not persist conversation", slog.String("conversation_id", c.id), slog.String("error", err.Error()))
		}
	}
	c.logger.InfoContext(ctx, "conversation started", slog.String("conversation_id", c.id))
	return c.id
}

// Append adds a message and evicts the oldest entries beyond the window.
// Persistence failures are logged and never affect the window.
func (c *Context) Append(ctx context.Context, role Role, content string, metadata map[string]any) Message {
	if metadata == nil {
		metadata = map[string]any{}
	}
	message := Message{Role: role, Content: content, Timestamp: c.now(), Metadata: metadata}
	c.messages = append(c.messages, message)
	if overflow := len(c.messages) - c.maxMessages; overflow > 0 {
		c.messages = append([]Message(nil), c.messages[overflow:]...)
	}

	if c.store != nil && c.id != "" {
		if err := c.store.SaveMessage(ctx, c.id, message); err != nil {
			c.logger.WarnContext(ctx, "could not save message", slog.String("conversation_id", c.id), slog.String("error", err.Error()))
		}
	}
	if c.index != nil && c.id != "" && role == RoleUser {
		_, err := c.index.Add(ctx, semantic.ChatHistoryCollection, c.id, content, map[string]string{
			"conversation_id": c.id,
			"role":            string(role),
			"timestamp":       message.Timestamp.Format(time.RFC3339Nano),
		})
		if err != nil {
			c.logger.WarnContext(ctx, "could not index message", slog.String("conversation_id", c.id), slog.String("error", err.Error()))
		}
	}
	return message
}

// Messages returns a copy of the last n messages, or all when n <= 0.
func (c *Context) Messages(n int) []Message {
	window := c.messages
	if n > 0 && n < len(window) {
		window = window[len(window)-n:]
	}
	out := make([]Message, len(window))
	copy(out, window)
	return out
}

// Render joins the last n messages as "Role: content" lines.
func (c *Context) Render(n int) string {
	messages := c.Messages(n)
	lines := make([]string, 0, len(messages))
	for _, message := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", message.Role.Title(), message.Content))
	}
	return strings.Join(lines, "\n")
}

func (c *Context) HasContext() bool {
	return len(c.messages) > 0
}

func (c *Context) LastUserMessage() (string, bool) {
	return c.last(RoleUser)
}

func (c *Context) LastAssistantMessage() (string, bool) {
	return c.last(RoleAssistant)
}

func (c *Context) last(role Role) (string, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == role {
			return c.messages[i].Content, true
		}
	}
	return "", false
}

func (c *Context) Summary() Summary {
	summary := Summary{ConversationID: c.id, MessageCount: len(c.messages)}
	for _, message := range c.messages {
		switch message.Role {
		case RoleUser:
			summary.UserMessages++
		case RoleAssistant:
			summary.AssistantMessages++
		}
	}
	if len(c.messages) > 0 {
		first := c.messages[0].Timestamp
		last := c.messages[len(c.messages)-1].Timestamp
		summary.FirstMessageTime = &first
		summary.LastMessageTime = &last
	}
	return summary
}

// FormatHistory renders the window as a numbered list for display.
func (c *Context) FormatHistory() string {
	if len(c.messages) == 0 {
		return "No conversation history"
	}
	lines := make([]string, 0, len(c.messages))
	for i, message := range c.messages {
		content := message.Content
		if runes := []rune(content); len(runes) > historyPreviewLength {
			content = string(runes[:historyPreviewLength]) + "..."
		}
		lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, message.Role.Title(), content))
	}
	return strings.Join(lines, "\n")
}

// Clear empties the window but keeps the conversation id.
func (c *Context) Clear() {
	c.messages = nil
}

func (c *Context) End() {
	c.id = ""
	c.messages = nil
}

// SearchSimilar looks up earlier user messages of this conversation,
// including those already evicted from the window. Failures yield no matches.
func (c *Context) SearchSimilar(ctx context.Context, text string, n int) []semantic.Match {
	if c.index == nil || c.id == "" {
		return nil
	}
	matches, err := c.index.Search(ctx, semantic.ChatHistoryCollection, c.id, text, n)
	if err != nil {
		c.logger.WarnContext(ctx, "semantic search failed", slog.String("error", err.Error()))
		return nil
	}
	return matches
}

// Title returns the role with an upper-case first letter.
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}
