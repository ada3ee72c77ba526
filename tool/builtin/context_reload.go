// Package builtin provides tools every compaction-enabled agent carries.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/youssefsiam38/agentctx/compaction"
	"github.com/youssefsiam38/agentctx/tool"
	"github.com/youssefsiam38/agentctx/types"
)

// OffloadIDField is the input field carrying the offload id.
const OffloadIDField = "working_context_offload_uuid"

// Reloader returns the messages archived under an offload id.
// *compaction.Engine satisfies it.
type Reloader interface {
	Reload(id string) ([]*types.Message, error)
}

// ContextReloadTool lets the agent bring back content that compaction
// replaced with a summary or a preview.
type ContextReloadTool struct {
	reloader Reloader
	name     string
}

// NewContextReloadTool creates the tool under compaction.DefaultReloadToolName.
func NewContextReloadTool(reloader Reloader) *ContextReloadTool {
	return &ContextReloadTool{reloader: reloader, name: compaction.DefaultReloadToolName}
}

// WithName renames the tool. It must match Config.ReloadToolName so the
// hints written by the strategies point at it.
func (t *ContextReloadTool) WithName(name string) *ContextReloadTool {
	if name != "" {
		t.name = name
	}
	return t
}

func (t *ContextReloadTool) Name() string {
	return t.name
}

func (t *ContextReloadTool) Description() string {
	return "Reload the original messages behind a compacted or offloaded part of the conversation. " +
		"Use the id given in the offload hint."
}

func (t *ContextReloadTool) InputSchema() tool.ToolSchema {
	minLen := 1
	return tool.ToolSchema{
		Type: "object",
		Properties: map[string]tool.PropertyDef{
			OffloadIDField: {
				Type:        "string",
				Description: "The offload id quoted in the hint",
				MinLength:   &minLen,
			},
		},
		Required: []string{OffloadIDField},
	}
}

func (t *ContextReloadTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var in map[string]string
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("failed to parse input: %w", err)
	}
	id := strings.TrimSpace(in[OffloadIDField])
	if id == "" {
		return "", fmt.Errorf("%s is required", OffloadIDField)
	}

	msgs, err := t.reloader.Reload(id)
	if err != nil {
		return "", err
	}
	return RenderMessages(id, msgs), nil
}

// RenderMessages writes reloaded messages in full, one section per message.
func RenderMessages(id string, msgs []*types.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reloaded %d message(s) from %s.\n", len(msgs), id)

	for i, msg := range msgs {
		fmt.Fprintf(&sb, "\n--- message %d (%s) ---\n", i+1, msg.Role)
		for _, block := range msg.Content {
			switch block.Type {
			case types.ContentTypeText:
				sb.WriteString(block.Text)
			case types.ContentTypeThinking:
				fmt.Fprintf(&sb, "[thinking] %s", block.Text)
			case types.ContentTypeToolUse:
				fmt.Fprintf(&sb, "[tool_use %s id=%s] %s", block.ToolName, block.ToolUseID, string(block.ToolInput))
			case types.ContentTypeToolResult:
				label := "tool_result"
				if block.IsError {
					label = "tool_error"
				}
				fmt.Fprintf(&sb, "[%s id=%s] %s", label, block.ToolResultID, block.ToolContent)
			default:
				fmt.Fprintf(&sb, "[%s]", block.Type)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
