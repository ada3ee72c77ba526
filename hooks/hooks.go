package hooks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/youssefsiam38/agentctx/types"
)

// BeforeCompactionHook is called when a compaction pass is triggered.
// Parameters: ctx, sessionID, working-set size, token estimate
type BeforeCompactionHook func(ctx context.Context, sessionID string, messages, tokens int) error

// StrategyHook is called after each strategy of a compaction pass
type StrategyHook func(ctx context.Context, outcome *StrategyOutcome) error

// AfterCompactionHook is called after a compaction pass
type AfterCompactionHook func(ctx context.Context, result *types.CompactionResult) error

// ToolCallHook is called when a tool is executed
// Parameters: ctx, toolName, input, output, error
type ToolCallHook func(ctx context.Context, toolName string, input json.RawMessage, output string, err error) error

// StrategyOutcome describes one strategy run inside a compaction pass.
type StrategyOutcome struct {
	SessionID string
	Strategy  string

	// Applied is true when the strategy's result was kept.
	Applied bool

	// Discarded is true when the strategy produced a result that would have
	// grown the token estimate.
	Discarded bool

	// Err is the failure that aborted the strategy, if any.
	Err error

	Events       []*types.CompressionEvent
	TokensBefore int
	TokensAfter  int
	Duration     time.Duration
}

// Registry holds all registered hooks
type Registry struct {
	mu               sync.RWMutex
	beforeCompaction []BeforeCompactionHook
	strategy         []StrategyHook
	afterCompaction  []AfterCompactionHook
	toolCall         []ToolCallHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{}
}

// OnBeforeCompaction registers a hook to be called before compaction
func (r *Registry) OnBeforeCompaction(hook BeforeCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeCompaction = append(r.beforeCompaction, hook)
}

// OnStrategy registers a hook to be called after each strategy
func (r *Registry) OnStrategy(hook StrategyHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategy = append(r.strategy, hook)
}

// OnAfterCompaction registers a hook to be called after compaction
func (r *Registry) OnAfterCompaction(hook AfterCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterCompaction = append(r.afterCompaction, hook)
}

// OnToolCall registers a hook to be called when a tool is executed
func (r *Registry) OnToolCall(hook ToolCallHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolCall = append(r.toolCall, hook)
}

// TriggerBeforeCompaction calls all registered before-compaction hooks
func (r *Registry) TriggerBeforeCompaction(ctx context.Context, sessionID string, messages, tokens int) error {
	r.mu.RLock()
	hooks := make([]BeforeCompactionHook, len(r.beforeCompaction))
	copy(hooks, r.beforeCompaction)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, messages, tokens); err != nil {
			return err
		}
	}
	return nil
}

// TriggerStrategy calls all registered strategy hooks
func (r *Registry) TriggerStrategy(ctx context.Context, outcome *StrategyOutcome) error {
	r.mu.RLock()
	hooks := make([]StrategyHook, len(r.strategy))
	copy(hooks, r.strategy)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, outcome); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterCompaction calls all registered after-compaction hooks
func (r *Registry) TriggerAfterCompaction(ctx context.Context, result *types.CompactionResult) error {
	r.mu.RLock()
	hooks := make([]AfterCompactionHook, len(r.afterCompaction))
	copy(hooks, r.afterCompaction)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// TriggerToolCall calls all registered tool-call hooks
func (r *Registry) TriggerToolCall(ctx context.Context, toolName string, input json.RawMessage, output string, err error) error {
	r.mu.RLock()
	hooks := make([]ToolCallHook, len(r.toolCall))
	copy(hooks, r.toolCall)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if hookErr := hook(ctx, toolName, input, output, err); hookErr != nil {
			return hookErr
		}
	}
	return nil
}
