package tool

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound is returned when no tool is registered under the requested name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidInput is returned when a tool input does not match its schema.
	ErrInvalidInput = errors.New("invalid tool input")

	// ErrInvalidTool is returned by Register for a nil, unnamed or malformed tool.
	ErrInvalidTool = errors.New("invalid tool")
)

// ToolError records which tool call failed.
type ToolError struct {
	Tool      string
	ToolUseID string
	Err       error
}

func (e *ToolError) Error() string {
	if e.ToolUseID != "" {
		return fmt.Sprintf("tool %s (%s): %v", e.Tool, e.ToolUseID, e.Err)
	}
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
