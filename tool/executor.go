package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/youssefsiam38/agentctx/types"
)

// DefaultTimeout bounds a single tool call.
const DefaultTimeout = 30 * time.Second

// Executor runs the tool_use blocks of assistant messages against a Registry.
type Executor struct {
	registry *Registry
	timeout  time.Duration
	parallel bool
}

// NewExecutor creates an executor that runs calls sequentially with DefaultTimeout.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		timeout:  DefaultTimeout,
	}
}

// SetTimeout sets the per-call timeout.
func (e *Executor) SetTimeout(timeout time.Duration) {
	e.timeout = timeout
}

// SetParallel makes the executor run the calls of one message concurrently.
func (e *Executor) SetParallel(parallel bool) {
	e.parallel = parallel
}

// Call is one tool_use block.
type Call struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Result is the outcome of a Call.
type Result struct {
	Call     Call
	Output   string
	Err      error
	Duration time.Duration
}

// Calls extracts the tool_use blocks of msg in order.
func Calls(msg *types.Message) []Call {
	var calls []Call
	for _, block := range msg.Content {
		if block.Type == types.ContentTypeToolUse {
			calls = append(calls, Call{ID: block.ToolUseID, Name: block.ToolName, Input: block.ToolInput})
		}
	}
	return calls
}

// Execute runs one call with the configured timeout.
func (e *Executor) Execute(ctx context.Context, call Call) *Result {
	start := time.Now()

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	output, err := e.registry.Execute(execCtx, call.Name, call.Input)
	if cerr := execCtx.Err(); cerr != nil && err == nil {
		err = cerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = &ToolError{Tool: call.Name, ToolUseID: call.ID, Err: fmt.Errorf("timeout after %v: %w", e.timeout, err)}
	}

	return &Result{
		Call:     call,
		Output:   output,
		Err:      err,
		Duration: time.Since(start),
	}
}

// ExecuteAll runs the calls and returns their results in call order.
func (e *Executor) ExecuteAll(ctx context.Context, calls []Call) []*Result {
	results := make([]*Result, len(calls))
	if !e.parallel {
		for i, call := range calls {
			results[i] = e.Execute(ctx, call)
		}
		return results
	}

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		go func(idx int, c Call) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, c)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Respond runs every tool_use block of an assistant message and returns the
// user message carrying the matching tool_result blocks. It returns nil when
// msg calls no tools. Tool failures become error results so the pairing of
// calls and results is always complete.
func (e *Executor) Respond(ctx context.Context, msg *types.Message) *types.Message {
	calls := Calls(msg)
	if len(calls) == 0 {
		return nil
	}

	results := e.ExecuteAll(ctx, calls)
	content := make([]types.ContentBlock, 0, len(results))
	for _, r := range results {
		block := types.ContentBlock{
			Type:         types.ContentTypeToolResult,
			ToolResultID: r.Call.ID,
			ToolContent:  r.Output,
		}
		if r.Err != nil {
			block.ToolContent = r.Err.Error()
			block.IsError = true
		}
		content = append(content, block)
	}

	return &types.Message{
		ID:        types.NewMessageID(),
		Role:      types.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
