package domain

import "time"

// ToolCall is a request from the model (or a workflow step) to execute a tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the outcome of dispatching a single tool call.
// Errors are data, not control flow: the caller feeds them back into the
// conversation or workflow state so the run can adapt.
type ToolResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Result  any    `json:"result,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolInvocation is the audit record of one dispatch, accumulated in the
// tool log state field.
type ToolInvocation struct {
	Name      string         `json:"name"`
	Args      map[string]any `json:"args,omitempty"`
	Result    string         `json:"result,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// ToolSpec describes a registered tool to the model for tool selection.
// Parameters follows the JSON Schema object convention used by
// OpenAI-compatible APIs.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}
