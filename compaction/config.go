package compaction

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	DefaultMsgThreshold                 = 100
	DefaultMaxTokens                    = 128 * 1024
	DefaultTokenRatio                   = 0.75
	DefaultLastKeep                     = 50
	DefaultLargePayloadChars            = 5 * 1024
	DefaultOffloadPreviewChars          = 200
	DefaultMinConsecutiveToolMessages   = 6
	DefaultCurrentRoundCompressionRatio = 0.3
	DefaultSummarizerTimeout            = 60 * time.Second
	DefaultReloadToolName               = "context_reload"
)

// NoLastKeep as Config.LastKeep disables tail protection.
const NoLastKeep = -1

// DefaultPlanToolNames lists the plan notebook tools whose calls are
// treated as plan-related during summarization.
var DefaultPlanToolNames = []string{
	"create_plan",
	"update_plan_info",
	"revise_current_plan",
	"update_subtask_state",
	"finish_subtask",
	"view_subtasks",
	"get_subtask_count",
	"finish_plan",
	"view_historical_plans",
	"recover_historical_plan",
}

// Config holds compaction configuration.
// Fields ending in Chars are measured in characters, fields ending in Tokens
// in tokens. Zero values are replaced by defaults in ApplyDefaults.
type Config struct {
	// MsgThreshold triggers compaction once the working set holds at least
	// this many messages.
	// Default: 100
	MsgThreshold int `yaml:"msg_threshold"`

	// MaxTokens is the context window of the model the conversation is sent to.
	// Default: 131072
	MaxTokens int `yaml:"max_tokens"`

	// TokenRatio triggers compaction once the estimated token count reaches
	// MaxTokens * TokenRatio.
	// Default: 0.75
	TokenRatio float64 `yaml:"token_ratio"`

	// LastKeep is the number of most recent messages protected from the
	// tool-run and protected-offload strategies. Zero selects the default;
	// NoLastKeep (any negative value) protects no tail at all.
	// Default: 50
	LastKeep int `yaml:"last_keep"`

	// LargePayloadChars is the payload size from which a message is
	// considered large.
	// Default: 5120
	LargePayloadChars int `yaml:"large_payload_chars"`

	// OffloadPreviewChars is the length of the preview kept in place of an
	// off-loaded payload.
	// Default: 200
	OffloadPreviewChars int `yaml:"offload_preview_chars"`

	// MinConsecutiveToolMessages is the shortest run of tool messages the
	// tool-run strategy compresses.
	// Default: 6
	MinConsecutiveToolMessages int `yaml:"min_consecutive_tool_messages"`

	// CurrentRoundCompressionRatio is the target size of the current-round
	// summary relative to the characters it replaces.
	// Default: 0.3
	CurrentRoundCompressionRatio float64 `yaml:"current_round_compression_ratio"`

	// SummarizerTimeout bounds every summarizer call.
	// Default: 60s
	SummarizerTimeout time.Duration `yaml:"summarizer_timeout"`

	// Prompts overrides the system prompts of the summarizing strategies.
	Prompts PromptOverrides `yaml:"prompts"`

	// PlanToolNames identifies plan-related tool calls.
	// Default: DefaultPlanToolNames
	PlanToolNames []string `yaml:"plan_tool_names"`

	// ReloadToolName is the tool name mentioned in off-load hints.
	// Default: "context_reload"
	ReloadToolName string `yaml:"reload_tool_name"`
}

// PromptOverrides replaces the built-in system prompts. Empty fields keep
// the defaults.
type PromptOverrides struct {
	ToolRuns         string `yaml:"tool_runs"`
	HistoricalRounds string `yaml:"historical_rounds"`
	LargeMessage     string `yaml:"large_message"`
	CurrentRound     string `yaml:"current_round"`
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MsgThreshold == 0 {
		c.MsgThreshold = DefaultMsgThreshold
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.TokenRatio == 0 {
		c.TokenRatio = DefaultTokenRatio
	}
	if c.LastKeep == 0 {
		c.LastKeep = DefaultLastKeep
	}
	if c.LargePayloadChars == 0 {
		c.LargePayloadChars = DefaultLargePayloadChars
	}
	if c.OffloadPreviewChars == 0 {
		c.OffloadPreviewChars = DefaultOffloadPreviewChars
	}
	if c.MinConsecutiveToolMessages == 0 {
		c.MinConsecutiveToolMessages = DefaultMinConsecutiveToolMessages
	}
	if c.CurrentRoundCompressionRatio == 0 {
		c.CurrentRoundCompressionRatio = DefaultCurrentRoundCompressionRatio
	}
	if c.SummarizerTimeout == 0 {
		c.SummarizerTimeout = DefaultSummarizerTimeout
	}
	if c.PlanToolNames == nil {
		c.PlanToolNames = append([]string(nil), DefaultPlanToolNames...)
	}
	if c.ReloadToolName == "" {
		c.ReloadToolName = DefaultReloadToolName
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.MsgThreshold <= 0 {
		return fmt.Errorf("%w: msg_threshold must be positive, got %d", ErrInvalidConfig, c.MsgThreshold)
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidConfig, c.MaxTokens)
	}

	if c.TokenRatio <= 0 || c.TokenRatio > 1.0 {
		return fmt.Errorf("%w: token_ratio must be in (0, 1], got %f", ErrInvalidConfig, c.TokenRatio)
	}

	if c.LargePayloadChars <= 0 {
		return fmt.Errorf("%w: large_payload_chars must be positive, got %d", ErrInvalidConfig, c.LargePayloadChars)
	}

	if c.OffloadPreviewChars <= 0 {
		return fmt.Errorf("%w: offload_preview_chars must be positive, got %d", ErrInvalidConfig, c.OffloadPreviewChars)
	}

	if c.OffloadPreviewChars >= c.LargePayloadChars {
		return fmt.Errorf("%w: offload_preview_chars (%d) must be less than large_payload_chars (%d)",
			ErrInvalidConfig, c.OffloadPreviewChars, c.LargePayloadChars)
	}

	if c.MinConsecutiveToolMessages < 2 {
		return fmt.Errorf("%w: min_consecutive_tool_messages must be at least 2, got %d",
			ErrInvalidConfig, c.MinConsecutiveToolMessages)
	}

	if c.CurrentRoundCompressionRatio <= 0 || c.CurrentRoundCompressionRatio > 1.0 {
		return fmt.Errorf("%w: current_round_compression_ratio must be in (0, 1], got %f",
			ErrInvalidConfig, c.CurrentRoundCompressionRatio)
	}

	if c.SummarizerTimeout <= 0 {
		return fmt.Errorf("%w: summarizer_timeout must be positive, got %s", ErrInvalidConfig, c.SummarizerTimeout)
	}

	if c.ReloadToolName == "" {
		return fmt.Errorf("%w: reload_tool_name is required", ErrInvalidConfig)
	}

	return nil
}

// TriggerThreshold returns the absolute token count that triggers compaction.
func (c *Config) TriggerThreshold() int {
	return int(float64(c.MaxTokens) * c.TokenRatio)
}

// isPlanTool reports whether name is one of the configured plan tools.
func (c *Config) isPlanTool(name string) bool {
	for _, n := range c.PlanToolNames {
		if n == name {
			return true
		}
	}
	return false
}

func (c *Config) clone() Config {
	cp := *c
	cp.PlanToolNames = append([]string(nil), c.PlanToolNames...)
	return cp
}
