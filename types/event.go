package types

import "time"

// CompressionEvent is the audit record of one compaction applied to a span
// of the working set. Events are immutable once recorded.
type CompressionEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// CompressedCount is the number of working-set messages affected.
	CompressedCount int `json:"compressed_count"`

	// PreviousMessageID and NextMessageID identify the messages immediately
	// before and after the affected span. Empty at the ends of the working set.
	PreviousMessageID string `json:"previous_message_id,omitempty"`
	NextMessageID     string `json:"next_message_id,omitempty"`

	// ProducedMessageID is the message that replaced the span, if any.
	ProducedMessageID string `json:"produced_message_id,omitempty"`

	// OffloadID is the offload entry holding the originals, if any.
	OffloadID string `json:"offload_id,omitempty"`

	Metadata EventMetadata `json:"metadata"`
}

// EventMetadata carries the accounting attached to a compression event.
type EventMetadata struct {
	// Summarizer usage, zero for offload-only events.
	InputTokens  int   `json:"input_tokens,omitempty"`
	OutputTokens int   `json:"output_tokens,omitempty"`
	DurationMS   int64 `json:"duration_ms,omitempty"`

	// Token estimates of the affected span before and after.
	TokensBefore int `json:"tokens_before"`
	TokensAfter  int `json:"tokens_after"`
}

// CompactionResult summarizes one CompressIfNeeded pass.
type CompactionResult struct {
	SessionID       string
	Compressed      bool
	StrategiesRun   []string
	OriginalTokens  int
	CompactedTokens int
	MessagesBefore  int
	MessagesAfter   int
	Events          []*CompressionEvent
	OverBudget      bool
	Duration        time.Duration
}
