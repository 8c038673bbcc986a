// Package security implements the tool allow-list and the audit trail of
// tool calls made on behalf of the model.
package security

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Sentinel errors for security enforcement.
var (
	ErrPermissionDenied = errors.New("permission denied")
)

// Audit results.
const (
	ResultIntent  = "intent"
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// ActionToolCall is the action recorded for every tool invocation.
const ActionToolCall = "tool_call"

// AuditEvent is a single entry in the append-only audit log.
// It records argument names and result sizes only, never values.
type AuditEvent struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	Caller        string    `json:"caller"` // "chat" or "mcp"
	Action        string    `json:"action"`
	Tool          string    `json:"tool"`
	ArgumentKeys  []string  `json:"argument_keys,omitempty"`
	Result        string    `json:"result"` // "intent", "success", "failure", "denied"
	ContentLength int       `json:"content_length,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// ArgumentKeys returns the sorted keys of args.
func ArgumentKeys(args map[string]any) []string {
	if len(args) == 0 {
		return nil
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Auditor records audit events.
type Auditor interface {
	LogAction(ctx context.Context, event AuditEvent) error
	Close() error
}
