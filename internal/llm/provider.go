// Package llm defines the provider-agnostic interface for chat model interactions.
package llm

import "context"

// Provider is the abstraction over a chat model endpoint.
type Provider interface {
	// SendMessage sends a conversation to the model and returns its reply.
	SendMessage(ctx context.Context, req *Request) (*Response, error)
	// Name returns the provider identifier (e.g. "ollama").
	Name() string
}

// Request represents a full conversation sent to the model.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition // nil = no tool use
	Seed         *int             // nil = provider default sampling
}

// ToolDefinition describes a tool the model can invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Role identifies who sent a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in the conversation.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // Assistant messages requesting tools.
	ToolCallID string     // Tool messages answering a call.
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	ParseErr  error // Set when the arguments were not a JSON object.
}

// Response is what the model returns.
type Response struct {
	Message    Message
	Model      string
	DoneReason string
	Usage      Usage
}

// HasToolCalls returns true if the model is requesting tool execution.
func (r *Response) HasToolCalls() bool {
	return len(r.Message.ToolCalls) > 0
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
