// Package agent runs the untrusted side of SecureTools: the chat loop that
// talks to the model and the dispatcher that validates tool calls before
// they cross into the broker. Nothing in this package sees secret values;
// it only ever holds tools.Result content.
package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/jkaninda/securetools/internal/tools"
)

// ToolExecutor is the narrow view of the broker the agent is allowed to hold.
type ToolExecutor interface {
	Execute(ctx context.Context, call tools.Call) tools.Result
}

// Callers recorded in the audit trail.
const (
	CallerChat = "chat"
	CallerMCP  = "mcp"
)

// UnknownCallID is used for tool messages answering a call without an id.
const UnknownCallID = "unknown"

type correlationKey struct{}

// WithCorrelationID returns a context carrying the correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation id stored in ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// ensureCorrelationID attaches a fresh correlation id unless one is present.
func ensureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithCorrelationID(ctx, id), id
}
