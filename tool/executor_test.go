package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/youssefsiam38/agentctx/types"
)

func echoTool(name string) Tool {
	return NewFuncTool(
		name,
		"Echoes its input",
		ToolSchema{Type: "object", Properties: map[string]PropertyDef{"text": {Type: "string"}}},
		func(ctx context.Context, input json.RawMessage) (string, error) {
			var in struct{ Text string }
			if err := json.Unmarshal(input, &in); err != nil {
				return "", err
			}
			return in.Text, nil
		},
	)
}

func toolUseMessage(calls ...Call) *types.Message {
	msg := &types.Message{ID: types.NewMessageID(), Role: types.RoleAssistant}
	msg.Content = append(msg.Content, types.ContentBlock{Type: types.ContentTypeText, Text: "working on it"})
	for _, c := range calls {
		msg.Content = append(msg.Content, types.ContentBlock{
			Type:      types.ContentTypeToolUse,
			ToolUseID: c.ID,
			ToolName:  c.Name,
			ToolInput: c.Input,
		})
	}
	return msg
}

func TestCalls(t *testing.T) {
	msg := toolUseMessage(
		Call{ID: "a", Name: "echo", Input: json.RawMessage(`{"text":"1"}`)},
		Call{ID: "b", Name: "echo", Input: json.RawMessage(`{"text":"2"}`)},
	)
	calls := Calls(msg)
	if len(calls) != 2 {
		t.Fatalf("Calls() = %d calls, want 2", len(calls))
	}
	if calls[0].ID != "a" || calls[1].ID != "b" {
		t.Errorf("Calls() ids = %s,%s, want a,b", calls[0].ID, calls[1].ID)
	}
	if got := Calls(types.NewTextMessage(types.RoleAssistant, "done")); len(got) != 0 {
		t.Errorf("Calls(final response) = %v, want none", got)
	}
}

func TestExecutor_Respond(t *testing.T) {
	registry := NewRegistry(nil)
	if err := registry.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	executor := NewExecutor(registry)

	msg := toolUseMessage(
		Call{ID: "a", Name: "echo", Input: json.RawMessage(`{"text":"hello"}`)},
		Call{ID: "b", Name: "missing", Input: json.RawMessage(`{}`)},
		Call{ID: "c", Name: "echo", Input: json.RawMessage(`{"text": 3}`)},
	)
	resp := executor.Respond(context.Background(), msg)
	if resp == nil {
		t.Fatal("Respond() = nil, want tool results")
	}
	if resp.Role != types.RoleUser || resp.ID == "" {
		t.Errorf("Respond() role = %s id = %q, want user with id", resp.Role, resp.ID)
	}
	if len(resp.Content) != 3 {
		t.Fatalf("Respond() blocks = %d, want 3", len(resp.Content))
	}

	tests := []struct {
		id      string
		content string
		isError bool
	}{
		{id: "a", content: "hello"},
		{id: "b", isError: true},
		{id: "c", isError: true},
	}
	for i, tt := range tests {
		block := resp.Content[i]
		if block.Type != types.ContentTypeToolResult || block.ToolResultID != tt.id {
			t.Errorf("block %d = %s/%s, want tool_result/%s", i, block.Type, block.ToolResultID, tt.id)
		}
		if block.IsError != tt.isError {
			t.Errorf("block %d IsError = %v, want %v", i, block.IsError, tt.isError)
		}
		if tt.content != "" && block.ToolContent != tt.content {
			t.Errorf("block %d content = %q, want %q", i, block.ToolContent, tt.content)
		}
	}

	if got := executor.Respond(context.Background(), types.NewTextMessage(types.RoleAssistant, "done")); got != nil {
		t.Errorf("Respond(final response) = %v, want nil", got)
	}
}

func TestExecutor_Parallel(t *testing.T) {
	registry := NewRegistry(nil)

	var counter int32
	err := registry.Register(NewFuncTool(
		"counter",
		"Increments counter",
		ToolSchema{Type: "object"},
		func(ctx context.Context, input json.RawMessage) (string, error) {
			n := atomic.AddInt32(&counter, 1)
			time.Sleep(time.Millisecond * time.Duration(1+n%5))
			return "done", nil
		},
	))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	executor := NewExecutor(registry)
	executor.SetParallel(true)

	calls := make([]Call, 50)
	for i := range calls {
		calls[i] = Call{ID: fmt.Sprintf("call-%d", i), Name: "counter", Input: json.RawMessage(`{}`)}
	}
	results := executor.ExecuteAll(context.Background(), calls)

	if len(results) != len(calls) {
		t.Fatalf("ExecuteAll() = %d results, want %d", len(results), len(calls))
	}
	for i, r := range results {
		if r == nil || r.Err != nil {
			t.Fatalf("result %d = %+v, want success", i, r)
		}
		if r.Call.ID != calls[i].ID {
			t.Errorf("result %d call = %s, want %s", i, r.Call.ID, calls[i].ID)
		}
	}
	if got := atomic.LoadInt32(&counter); got != int32(len(calls)) {
		t.Errorf("counter = %d, want %d", got, len(calls))
	}
}

func TestExecutor_Timeout(t *testing.T) {
	registry := NewRegistry(nil)
	err := registry.Register(NewFuncTool(
		"slow",
		"A slow tool",
		ToolSchema{Type: "object"},
		func(ctx context.Context, input json.RawMessage) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "done", nil
			}
		},
	))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	executor := NewExecutor(registry)
	executor.SetTimeout(50 * time.Millisecond)

	result := executor.Execute(context.Background(), Call{ID: "1", Name: "slow", Input: json.RawMessage(`{}`)})
	if !errors.Is(result.Err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want deadline exceeded", result.Err)
	}
	var toolErr *ToolError
	if !errors.As(result.Err, &toolErr) || toolErr.ToolUseID != "1" {
		t.Errorf("Execute() error = %v, want *ToolError for call 1", result.Err)
	}
}

func TestExecutor_SequentialOrder(t *testing.T) {
	registry := NewRegistry(nil)

	var order []int
	err := registry.Register(NewFuncTool(
		"order",
		"Records execution order",
		ToolSchema{Type: "object", Properties: map[string]PropertyDef{"id": {Type: "integer"}}},
		func(ctx context.Context, input json.RawMessage) (string, error) {
			var in struct{ ID int }
			if err := json.Unmarshal(input, &in); err != nil {
				return "", err
			}
			order = append(order, in.ID)
			return "ok", nil
		},
	))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	calls := []Call{
		{ID: "1", Name: "order", Input: json.RawMessage(`{"id": 1}`)},
		{ID: "2", Name: "order", Input: json.RawMessage(`{"id": 2}`)},
		{ID: "3", Name: "order", Input: json.RawMessage(`{"id": 3}`)},
	}
	NewExecutor(registry).ExecuteAll(context.Background(), calls)

	if len(order) != 3 {
		t.Fatalf("order = %v, want 3 calls", order)
	}
	for i, want := range []int{1, 2, 3} {
		if order[i] != want {
			t.Errorf("order[%d] = %d, want %d", i, order[i], want)
		}
	}
}
