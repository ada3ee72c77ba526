package types

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Role represents the message role
type Role string

const (
	// RoleUser represents a user message (including tool results)
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message (including tool calls)
	RoleAssistant Role = "assistant"

	// RoleSystem represents a system message
	RoleSystem Role = "system"
)

// Metadata keys used to record compaction provenance on produced messages.
const (
	// MetaCompactionKind holds the strategy kind that produced the message.
	MetaCompactionKind = "compaction_kind"

	// MetaReplaces holds the IDs of the messages the produced message replaced.
	MetaReplaces = "replaces"

	// MetaOffloadID holds the offload UUID under which the originals were archived.
	MetaOffloadID = "offload_id"
)

// Message represents an immutable conversation record.
// Compaction never edits a Message in place; it produces a new one with a
// fresh ID whose metadata points back at what it replaced.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	Role      Role           `json:"role"`
	Content   []ContentBlock `json:"content"`
	Usage     *Usage         `json:"usage,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`

	// Compaction metadata
	IsPreserved bool `json:"is_preserved,omitempty"` // Never compact this message
	IsSummary   bool `json:"is_summary,omitempty"`   // Produced by a compaction strategy
}

// NewMessageID returns a time-ordered message identifier.
// UUIDv7 keeps identifiers monotonically ordered within a process.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// NewTextMessage creates a message with a single text block.
func NewTextMessage(role Role, text string) *Message {
	return &Message{
		ID:        NewMessageID(),
		Role:      role,
		Content:   []ContentBlock{{Type: ContentTypeText, Text: text}},
		CreatedAt: time.Now(),
	}
}

// TokenCount returns the total token count from usage
func (m *Message) TokenCount() int {
	if m.Usage == nil {
		return 0
	}
	return m.Usage.InputTokens + m.Usage.OutputTokens
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m

	c.Content = make([]ContentBlock, len(m.Content))
	for i := range m.Content {
		c.Content[i] = m.Content[i].clone()
	}

	if m.Usage != nil {
		u := *m.Usage
		c.Usage = &u
	}

	if m.Metadata != nil {
		c.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}

	return &c
}

// HasToolUse reports whether the message carries at least one tool call.
func (m *Message) HasToolUse() bool {
	for _, block := range m.Content {
		if block.Type == ContentTypeToolUse {
			return true
		}
	}
	return false
}

// HasToolResult reports whether the message carries at least one tool result.
func (m *Message) HasToolResult() bool {
	for _, block := range m.Content {
		if block.Type == ContentTypeToolResult {
			return true
		}
	}
	return false
}

// IsToolMessage reports whether the message is a tool invocation or a tool result.
func (m *Message) IsToolMessage() bool {
	return m.HasToolUse() || m.HasToolResult()
}

// IsUserTurn reports whether the message is a genuine user turn,
// as opposed to a user-role message that only carries tool results.
func (m *Message) IsUserTurn() bool {
	return m.Role == RoleUser && !m.HasToolResult() && !m.IsSummary
}

// IsFinalResponse reports whether the message is an assistant reply that
// does not request any tool call.
func (m *Message) IsFinalResponse() bool {
	return m.Role == RoleAssistant && !m.HasToolUse() && !m.IsSummary
}

// IsCompacted reports whether the message was produced by a compaction strategy.
func (m *Message) IsCompacted() bool {
	if m.IsSummary {
		return true
	}
	_, ok := m.Metadata[MetaCompactionKind]
	return ok
}

// OffloadID returns the offload UUID referenced by the message, if any.
func (m *Message) OffloadID() string {
	if id, ok := m.Metadata[MetaOffloadID].(string); ok {
		return id
	}
	return ""
}

// ReplacedIDs returns the IDs of the messages this message replaced.
// It accepts both the in-memory form and the form produced by a JSON round trip.
func (m *Message) ReplacedIDs() []string {
	switch v := m.Metadata[MetaReplaces].(type) {
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	}
	return nil
}

// PayloadChars returns the number of characters (runes, not tokens) carried by
// the message's text, thinking, tool input and tool result content.
func (m *Message) PayloadChars() int {
	total := 0
	for _, block := range m.Content {
		total += block.payloadChars()
	}
	return total
}

// Text concatenates the textual payload of the message.
func (m *Message) Text() string {
	var parts []string
	for _, block := range m.Content {
		switch block.Type {
		case ContentTypeText, ContentTypeThinking:
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		case ContentTypeToolResult:
			if block.ToolContent != "" {
				parts = append(parts, block.ToolContent)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// ToolNames returns the names of the tools invoked by the message.
func (m *Message) ToolNames() []string {
	var names []string
	for _, block := range m.Content {
		if block.Type == ContentTypeToolUse {
			names = append(names, block.ToolName)
		}
	}
	return names
}

// ContentType represents the type of content block
type ContentType string

const (
	// ContentTypeText represents text content
	ContentTypeText ContentType = "text"

	// ContentTypeThinking represents extended thinking content
	ContentTypeThinking ContentType = "thinking"

	// ContentTypeToolUse represents a tool use block
	ContentTypeToolUse ContentType = "tool_use"

	// ContentTypeToolResult represents a tool result block
	ContentTypeToolResult ContentType = "tool_result"

	// ContentTypeImage represents an image block
	ContentTypeImage ContentType = "image"

	// ContentTypeDocument represents a document block
	ContentTypeDocument ContentType = "document"
)

// ContentBlock represents a piece of content in a message.
// Type selects which of the fields below are meaningful.
type ContentBlock struct {
	Type ContentType `json:"type"`

	// Text and thinking content
	Text string `json:"text,omitempty"`

	// Tool use content
	ToolUseID string          `json:"id,omitempty"`
	ToolName  string          `json:"name,omitempty"`
	ToolInput json.RawMessage `json:"input,omitempty"`

	// Tool result content
	ToolResultID string `json:"tool_use_id,omitempty"`
	ToolContent  string `json:"content,omitempty"`
	IsError      bool   `json:"is_error,omitempty"`

	// Image content
	ImageSource *ImageSource `json:"source,omitempty"`

	// Document content
	DocumentSource *DocumentSource `json:"document,omitempty"`
}

func (b ContentBlock) clone() ContentBlock {
	c := b
	if b.ToolInput != nil {
		c.ToolInput = append(json.RawMessage(nil), b.ToolInput...)
	}
	if b.ImageSource != nil {
		src := *b.ImageSource
		c.ImageSource = &src
	}
	if b.DocumentSource != nil {
		src := *b.DocumentSource
		c.DocumentSource = &src
	}
	return c
}

func (b ContentBlock) payloadChars() int {
	switch b.Type {
	case ContentTypeText, ContentTypeThinking:
		return utf8.RuneCountInString(b.Text)
	case ContentTypeToolUse:
		return utf8.RuneCount(b.ToolInput)
	case ContentTypeToolResult:
		return utf8.RuneCountInString(b.ToolContent)
	case ContentTypeImage, ContentTypeDocument:
		return 0
	}
	return 0
}

// ImageSource represents an image source
type ImageSource struct {
	Type      string `json:"type"`       // "base64" or "url"
	MediaType string `json:"media_type"` // "image/jpeg", "image/png", etc.
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// DocumentSource represents a document source
type DocumentSource struct {
	Type      string `json:"type"`       // "base64"
	MediaType string `json:"media_type"` // "application/pdf"
	Data      string `json:"data"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// CloneMessages deep-copies a message slice.
func CloneMessages(messages []*Message) []*Message {
	if messages == nil {
		return nil
	}
	out := make([]*Message, len(messages))
	for i, msg := range messages {
		out[i] = msg.Clone()
	}
	return out
}
