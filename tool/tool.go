// Package tool exposes agent-callable tools and runs the tool_use blocks an
// assistant message carries.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is implemented by everything the agent can call.
type Tool interface {
	// Name is the identifier the model uses in tool_use blocks.
	Name() string

	// Description tells the model when to call the tool.
	Description() string

	// InputSchema is the JSON Schema of the tool input. Its Type must be "object".
	InputSchema() ToolSchema

	// Execute runs the tool. The returned string becomes the tool_result content.
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// ToolSchema is the top-level JSON Schema of a tool input.
type ToolSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]PropertyDef `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

// PropertyDef describes one input property.
type PropertyDef struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Items       *PropertyDef           `json:"items,omitempty"`
	Properties  map[string]PropertyDef `json:"properties,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
	MinLength   *int                   `json:"minLength,omitempty"`
	MaxLength   *int                   `json:"maxLength,omitempty"`
}

// toMap renders the property in the map form both provider SDKs accept.
func (d PropertyDef) toMap() map[string]any {
	prop := map[string]any{"type": d.Type}
	if d.Description != "" {
		prop["description"] = d.Description
	}
	if len(d.Enum) > 0 {
		prop["enum"] = d.Enum
	}
	if d.Minimum != nil {
		prop["minimum"] = *d.Minimum
	}
	if d.Maximum != nil {
		prop["maximum"] = *d.Maximum
	}
	if d.MinLength != nil {
		prop["minLength"] = *d.MinLength
	}
	if d.MaxLength != nil {
		prop["maxLength"] = *d.MaxLength
	}
	if d.Items != nil {
		prop["items"] = d.Items.toMap()
	}
	if len(d.Properties) > 0 {
		prop["properties"] = propertiesMap(d.Properties)
	}
	return prop
}

func propertiesMap(props map[string]PropertyDef) map[string]any {
	out := make(map[string]any, len(props))
	for name, def := range props {
		out[name] = def.toMap()
	}
	return out
}

type funcTool struct {
	name        string
	description string
	schema      ToolSchema
	fn          func(context.Context, json.RawMessage) (string, error)
}

func (t *funcTool) Name() string            { return t.name }
func (t *funcTool) Description() string     { return t.description }
func (t *funcTool) InputSchema() ToolSchema { return t.schema }

func (t *funcTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return t.fn(ctx, input)
}

// NewFuncTool wraps a function as a Tool.
func NewFuncTool(
	name string,
	description string,
	schema ToolSchema,
	fn func(context.Context, json.RawMessage) (string, error),
) Tool {
	return &funcTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
}
