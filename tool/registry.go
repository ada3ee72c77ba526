package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/youssefsiam38/agentctx/hooks"
)

// Registry holds the tools of one agent.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	validator *Validator
	hooks     *hooks.Registry
}

// NewRegistry creates an empty registry. Tool calls are reported to h when
// it is non-nil.
func NewRegistry(h *hooks.Registry) *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		validator: NewValidator(),
		hooks:     h,
	}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("%w: nil tool", ErrInvalidTool)
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}
	if typ := t.InputSchema().Type; typ != "object" {
		return fmt.Errorf("%w: %s: schema type must be 'object', got %q", ErrInvalidTool, name, typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s already registered", ErrInvalidTool, name)
	}
	r.tools[name] = t
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute validates the input, runs the tool and fires the tool-call hooks.
// A hook error is returned only when the tool itself succeeded.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", &ToolError{Tool: name, Err: ErrToolNotFound}
	}

	var (
		output string
		err    error
	)
	if verr := r.validator.ValidateInput(t.InputSchema(), input); verr != nil {
		err = &ToolError{Tool: name, Err: fmt.Errorf("%w: %v", ErrInvalidInput, verr)}
	} else {
		output, err = t.Execute(ctx, input)
	}

	if r.hooks != nil {
		if herr := r.hooks.TriggerToolCall(ctx, name, input, output, err); herr != nil && err == nil {
			return output, herr
		}
	}
	return output, err
}

// ToAnthropicTools converts the registered tools to Anthropic tool unions.
func (r *Registry) ToAnthropicTools() []anthropic.ToolUnionParam {
	names := r.List()
	unions := make([]anthropic.ToolUnionParam, 0, len(names))
	for _, name := range names {
		t, _ := r.Get(name)
		schema := t.InputSchema()

		param := anthropic.ToolParam{
			Name:        name,
			Description: anthropic.String(t.Description()),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       constant.Object("object"),
				Properties: propertiesMap(schema.Properties),
				Required:   schema.Required,
			},
		}
		unions = append(unions, anthropic.ToolUnionParam{OfTool: &param})
	}
	return unions
}

// ToOpenAITools converts the registered tools to OpenAI function tools.
func (r *Registry) ToOpenAITools() []openai.ChatCompletionToolParam {
	names := r.List()
	params := make([]openai.ChatCompletionToolParam, 0, len(names))
	for _, name := range names {
		t, _ := r.Get(name)
		schema := t.InputSchema()

		parameters := shared.FunctionParameters{
			"type":       "object",
			"properties": propertiesMap(schema.Properties),
		}
		if len(schema.Required) > 0 {
			parameters["required"] = schema.Required
		}
		params = append(params, openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        name,
				Description: openai.String(t.Description()),
				Parameters:  parameters,
			},
		})
	}
	return params
}
