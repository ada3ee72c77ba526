package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/youssefsiam38/agentctx/hooks"
	"github.com/youssefsiam38/agentctx/types"
)

// Logger interface for compaction logging.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a no-op implementation of Logger.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Option configures an Engine.
type Option func(*Engine)

// WithSummarizer sets the summarizer used by strategies 1, 4, 5 and 6.
// Without one those strategies never apply.
func WithSummarizer(s Summarizer) Option {
	return func(e *Engine) { e.summarizer = s }
}

// WithTokenCounter replaces the default ApproximateCounter.
func WithTokenCounter(c TokenCounter) Option {
	return func(e *Engine) {
		if c != nil {
			e.counter = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHooks sets the hook registry fired around compaction.
func WithHooks(r *hooks.Registry) Option {
	return func(e *Engine) { e.hooks = r }
}

// WithSessionID tags messages, logs and errors with a session id.
func WithSessionID(id string) Option {
	return func(e *Engine) { e.sessionID = id }
}

// WithClock overrides time.Now for message and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithStrategies replaces the default strategy chain.
func WithStrategies(strategies ...StrategyExecutor) Option {
	return func(e *Engine) { e.strategies = strategies }
}

// Engine keeps one conversation within its context budget.
//
// It owns the working set sent to the model, the append-only log of every
// message ever added, the offload archive and the event log. An Engine
// serves a single conversation and is not safe for concurrent use.
type Engine struct {
	config     Config
	sessionID  string
	summarizer Summarizer
	counter    TokenCounter
	logger     Logger
	hooks      *hooks.Registry
	strategies []StrategyExecutor
	now        func() time.Time
	plan       *PlanState

	working  []*types.Message
	original []*types.Message
	offload  *OffloadStore
	events   *EventLog
}

// New creates an Engine. A nil config selects DefaultConfig; zero fields are
// filled with defaults before validation.
func New(config *Config, opts ...Option) (*Engine, error) {
	var cfg Config
	if config != nil {
		cfg = config.clone()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:     cfg,
		counter:    ApproximateCounter{},
		logger:     noopLogger{},
		strategies: DefaultStrategies(),
		now:        time.Now,
		offload:    NewOffloadStore(),
		events:     &EventLog{},
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return e.config.clone()
}

// SessionID returns the session id the engine was created with.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// AddMessage appends msg to the working set and the original log.
// It fills in ID, SessionID and CreatedAt when empty and never compresses.
func (e *Engine) AddMessage(msg *types.Message) {
	if msg == nil {
		return
	}
	if msg.ID == "" {
		msg.ID = types.NewMessageID()
	}
	if msg.SessionID == "" {
		msg.SessionID = e.sessionID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = e.now()
	}

	e.working = append(e.working, msg)
	e.original = append(e.original, msg)
}

// SetPlan updates the plan used to bias summaries. A nil plan clears it.
func (e *Engine) SetPlan(plan *PlanState) {
	e.plan = plan
}

// WorkingSet returns the messages to send to the model, oldest first.
func (e *Engine) WorkingSet() []*types.Message {
	return append([]*types.Message(nil), e.working...)
}

// OriginalLog returns every message ever added, oldest first.
func (e *Engine) OriginalLog() []*types.Message {
	return append([]*types.Message(nil), e.original...)
}

// Events returns the compression events recorded so far.
func (e *Engine) Events() []*types.CompressionEvent {
	return e.events.Events()
}

// Reload returns the messages archived under id.
// It returns an error matching ErrOffloadNotFound for an unknown id.
func (e *Engine) Reload(id string) ([]*types.Message, error) {
	return e.offload.Reload(id)
}

// ClearOffload drops an offload entry. Unknown ids are ignored.
func (e *Engine) ClearOffload(id string) {
	e.offload.Clear(id)
}

// OffloadIDs returns the ids of the archived entries.
func (e *Engine) OffloadIDs() []string {
	return e.offload.IDs()
}

// Stats describes the current state of the engine.
type Stats struct {
	SessionID        string
	Messages         int
	OriginalMessages int
	Tokens           int
	TriggerTokens    int
	MaxTokens        int
	UsagePercent     float64
	OffloadEntries   int
	Events           int
	NeedsCompaction  bool
}

// Stats returns current statistics.
func (e *Engine) Stats(ctx context.Context) *Stats {
	tokens := e.countTokens(ctx, e.working)
	return &Stats{
		SessionID:        e.sessionID,
		Messages:         len(e.working),
		OriginalMessages: len(e.original),
		Tokens:           tokens,
		TriggerTokens:    e.config.TriggerThreshold(),
		MaxTokens:        e.config.MaxTokens,
		UsagePercent:     float64(tokens) / float64(e.config.MaxTokens),
		OffloadEntries:   e.offload.Len(),
		Events:           e.events.Len(),
		NeedsCompaction:  e.triggered(len(e.working), tokens),
	}
}

// NeedsCompaction reports whether the working set exceeds either threshold.
func (e *Engine) NeedsCompaction(ctx context.Context) bool {
	return e.triggered(len(e.working), e.countTokens(ctx, e.working))
}

func (e *Engine) triggered(messages, tokens int) bool {
	return messages >= e.config.MsgThreshold || tokens >= e.config.TriggerThreshold()
}

// countTokens never fails; counter errors degrade to the approximation.
func (e *Engine) countTokens(ctx context.Context, messages []*types.Message) int {
	n, err := e.counter.CountTokens(ctx, messages)
	if err != nil {
		e.logger.Warn("token counting failed, using approximation",
			"session_id", e.sessionID, "error", err)
		return approximateMessages(messages)
	}
	return n
}

// CompressIfNeeded compresses the working set when it exceeds the message or
// token threshold, and returns it. The boolean reports whether anything
// changed.
//
// Strategies run in order on a staged copy. A strategy whose result would
// grow the token estimate is discarded, and the chain stops as soon as the
// working set is back under both thresholds. Staged working set, offload
// entries and events are committed together at the end. Strategy failures
// are logged and never returned.
func (e *Engine) CompressIfNeeded(ctx context.Context) ([]*types.Message, bool) {
	start := time.Now()
	tokens := e.countTokens(ctx, e.working)
	if !e.triggered(len(e.working), tokens) {
		return e.WorkingSet(), false
	}

	e.logger.Info("compaction triggered",
		"session_id", e.sessionID,
		"messages", len(e.working),
		"tokens_before", tokens,
		"trigger_tokens", e.config.TriggerThreshold(),
	)
	if e.hooks != nil {
		if err := e.hooks.TriggerBeforeCompaction(ctx, e.sessionID, len(e.working), tokens); err != nil {
			e.logger.Warn("before-compaction hook failed", "session_id", e.sessionID, "error", err)
		}
	}

	result := &types.CompactionResult{
		SessionID:      e.sessionID,
		OriginalTokens: tokens,
		MessagesBefore: len(e.working),
	}

	staged := e.working
	var offloads []OffloadEntry
	planHint := BuildPlanHint(e.plan)

	for _, strategy := range e.strategies {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("compaction interrupted", "session_id", e.sessionID, "error", err)
			break
		}

		in := &StrategyInput{
			SessionID:  e.sessionID,
			Original:   e.original,
			Working:    staged,
			Config:     &e.config,
			Window:     ComputeWindow(staged, e.config.LastKeep),
			PlanHint:   planHint,
			Summarizer: e.summarizer,
			Counter:    e.counter,
			Now:        e.now,
		}

		strategyStart := time.Now()
		res, err := e.runStrategy(ctx, strategy, in)
		outcome := &hooks.StrategyOutcome{
			SessionID:    e.sessionID,
			Strategy:     string(strategy.Name()),
			TokensBefore: tokens,
			TokensAfter:  tokens,
		}

		switch {
		case err != nil:
			outcome.Err = err
			e.logger.Warn("compaction strategy failed",
				"session_id", e.sessionID, "strategy", strategy.Name(), "error", err)

		case res == nil || !res.Applied:
			e.logger.Debug("compaction strategy not applicable",
				"session_id", e.sessionID, "strategy", strategy.Name())

		default:
			after := e.countTokens(ctx, res.Messages)
			outcome.TokensAfter = after
			if after > tokens {
				outcome.Discarded = true
				e.logger.Warn("compaction strategy discarded, token estimate grew",
					"session_id", e.sessionID, "strategy", strategy.Name(),
					"tokens_before", tokens, "tokens_after", after)
				break
			}

			staged = res.Messages
			offloads = append(offloads, res.Offloads...)
			result.Events = append(result.Events, res.Events...)
			result.StrategiesRun = append(result.StrategiesRun, string(strategy.Name()))
			outcome.Applied = true
			outcome.Events = res.Events
			e.logger.Info("compaction strategy applied",
				"session_id", e.sessionID, "strategy", strategy.Name(),
				"tokens_before", tokens, "tokens_after", after,
				"events", len(res.Events),
				"duration_ms", time.Since(strategyStart).Milliseconds())
			tokens = after
		}

		outcome.Duration = time.Since(strategyStart)
		if e.hooks != nil {
			if hookErr := e.hooks.TriggerStrategy(ctx, outcome); hookErr != nil {
				e.logger.Warn("strategy hook failed", "session_id", e.sessionID, "error", hookErr)
			}
		}

		if outcome.Applied && !e.triggered(len(staged), tokens) {
			break
		}
	}

	result.Compressed = len(result.StrategiesRun) > 0
	if result.Compressed {
		e.working = staged
		for _, entry := range offloads {
			e.offload.Offload(entry.ID, entry.Messages)
		}
		e.events.Append(result.Events...)
	}

	result.CompactedTokens = tokens
	result.MessagesAfter = len(e.working)
	result.OverBudget = e.triggered(len(e.working), tokens)
	result.Duration = time.Since(start)

	if result.OverBudget {
		e.logger.Warn("working set still over budget after compaction",
			"session_id", e.sessionID,
			"messages", len(e.working),
			"tokens_after", tokens,
			"msg_threshold", e.config.MsgThreshold,
			"trigger_tokens", e.config.TriggerThreshold(),
		)
	}
	e.logger.Info("compaction finished",
		"session_id", e.sessionID,
		"compressed", result.Compressed,
		"strategies", result.StrategiesRun,
		"tokens_before", result.OriginalTokens,
		"tokens_after", result.CompactedTokens,
		"duration_ms", result.Duration.Milliseconds(),
	)

	if e.hooks != nil {
		if err := e.hooks.TriggerAfterCompaction(ctx, result); err != nil {
			e.logger.Warn("after-compaction hook failed", "session_id", e.sessionID, "error", err)
		}
	}

	return e.WorkingSet(), result.Compressed
}

// runStrategy executes s, turning a panic into an error.
func (e *Engine) runStrategy(ctx context.Context, s StrategyExecutor, in *StrategyInput) (res *StrategyResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = NewCompactionError(string(s.Name()), fmt.Errorf("panic: %v", r)).WithSession(e.sessionID)
		}
	}()

	res, err = s.Execute(ctx, in)
	if err != nil {
		return nil, NewCompactionError(string(s.Name()), err).WithSession(e.sessionID)
	}
	return res, nil
}
