package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/securetools/internal/llm"
	"github.com/jkaninda/securetools/internal/observability"
	"github.com/jkaninda/securetools/internal/ratelimit"
	"github.com/jkaninda/securetools/internal/security"
	"github.com/jkaninda/securetools/internal/tools"
)

// Dispatcher validates tool calls against the registry and the tool policy,
// audits them and forwards valid ones to the broker. The chat loop and the
// MCP server share it, so both callers get the same checks.
type Dispatcher struct {
	registry *tools.Registry
	executor ToolExecutor
	policy   *security.ToolPolicy            // nil = all registered tools allowed
	auditor  security.Auditor                // nil = audit disabled
	metrics  *observability.MetricsCollector // nil = metrics disabled
	limiter  *ratelimit.Limiter              // nil = unlimited
	caller   string
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher for the given caller ("chat" or "mcp").
func NewDispatcher(registry *tools.Registry, executor ToolExecutor, caller string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		executor: executor,
		caller:   caller,
		logger:   logger,
	}
}

// WithPolicy restricts which tools are offered and callable.
func (d *Dispatcher) WithPolicy(p *security.ToolPolicy) *Dispatcher {
	d.policy = p
	return d
}

// WithAuditor records every dispatched call.
func (d *Dispatcher) WithAuditor(a security.Auditor) *Dispatcher {
	d.auditor = a
	return d
}

// WithMetrics counts validation outcomes.
func (d *Dispatcher) WithMetrics(m *observability.MetricsCollector) *Dispatcher {
	d.metrics = m
	return d
}

// WithRateLimit caps this caller's calls per tool per minute.
func (d *Dispatcher) WithRateLimit(l *ratelimit.Limiter) *Dispatcher {
	d.limiter = l
	return d
}

// Definitions returns the registered tools the policy allows, in registry order.
func (d *Dispatcher) Definitions() []tools.Definition {
	all := d.registry.List()
	out := make([]tools.Definition, 0, len(all))
	for _, def := range all {
		if d.policy.Allows(def.Name) {
			out = append(out, def)
		}
	}
	return out
}

// LLMDefinitions returns Definitions in the model's tool format, or nil when
// no tool is allowed.
func (d *Dispatcher) LLMDefinitions() []llm.ToolDefinition {
	defs := d.Definitions()
	if len(defs) == 0 {
		return nil
	}
	return tools.ToLLMDefinitions(defs)
}

// Validate checks that the call names a registered, allowed tool and
// carries every required parameter.
func (d *Dispatcher) Validate(call tools.Call) error {
	def, ok := d.registry.Get(call.Name)
	if !ok {
		return tools.NewValidationError(call.Name, "Unknown tool requested: %s", call.Name)
	}
	if !d.policy.Allows(call.Name) {
		return tools.NewValidationError(call.Name, "Tool not allowed: %s", call.Name)
	}
	if call.Malformed {
		return tools.NewValidationError(call.Name, "Malformed arguments for tool '%s'", call.Name)
	}
	return def.CheckArguments(call.Arguments)
}

// Dispatch validates and executes a call. A failed validation or an
// exhausted rate limit is returned as a *tools.ValidationError and the
// broker is not invoked.
func (d *Dispatcher) Dispatch(ctx context.Context, call tools.Call) (tools.Result, error) {
	if err := d.Validate(call); err != nil {
		d.metrics.RecordSecurityCheck("tool_validation", false)
		return tools.Result{}, d.reject(ctx, call, err)
	}
	d.metrics.RecordSecurityCheck("tool_validation", true)

	if err := d.limiter.Allow(d.caller, call.Name); err != nil {
		d.metrics.RecordSecurityCheck("rate_limit", false)
		return tools.Result{}, d.reject(ctx, call,
			tools.NewValidationError(call.Name, "Rate limit exceeded for tool: %s. Try again later.", call.Name))
	}

	d.audit(ctx, call, security.ResultIntent, 0, nil)
	d.logger.InfoContext(ctx, "executing tool",
		slog.String("tool", call.Name),
		slog.String("correlation_id", CorrelationID(ctx)),
		slog.Any("argument_keys", security.ArgumentKeys(call.Arguments)),
	)

	result := d.executor.Execute(ctx, call)

	outcome := security.ResultSuccess
	var failure error
	if !result.Success {
		outcome = security.ResultFailure
		failure = errors.New(result.Content)
	}
	d.audit(ctx, call, outcome, len(result.Content), failure)
	d.logger.DebugContext(ctx, "tool finished",
		slog.String("tool", call.Name),
		slog.Bool("success", result.Success),
		slog.Int("content_length", len(result.Content)),
	)
	return result, nil
}

func (d *Dispatcher) reject(ctx context.Context, call tools.Call, err error) error {
	d.audit(ctx, call, security.ResultDenied, 0, err)
	d.logger.WarnContext(ctx, "tool call rejected",
		slog.String("tool", call.Name),
		slog.String("correlation_id", CorrelationID(ctx)),
		slog.String("error", err.Error()),
	)
	return err
}

func (d *Dispatcher) audit(ctx context.Context, call tools.Call, result string, contentLength int, err error) {
	if d.auditor == nil {
		return
	}
	event := security.AuditEvent{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		CorrelationID: CorrelationID(ctx),
		Caller:        d.caller,
		Action:        security.ActionToolCall,
		Tool:          call.Name,
		ArgumentKeys:  security.ArgumentKeys(call.Arguments),
		Result:        result,
		ContentLength: contentLength,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if logErr := d.auditor.LogAction(ctx, event); logErr != nil {
		d.logger.ErrorContext(ctx, "failed to write audit event",
			slog.String("tool", call.Name),
			slog.String("error", logErr.Error()),
		)
	}
}
