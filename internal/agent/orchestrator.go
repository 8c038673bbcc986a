package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/securetools/internal/llm"
	"github.com/jkaninda/securetools/internal/observability"
	"github.com/jkaninda/securetools/internal/tools"
)

// DefaultMaxToolCalls is the cumulative tool call limit per session.
const DefaultMaxToolCalls = 10

// Orchestrator runs the chat loop: it sends the conversation to the model,
// dispatches the tool calls the model requests and feeds the sanitized
// results back until the model produces a final answer.
// One Orchestrator holds one conversation; Chat calls are serialized.
type Orchestrator struct {
	provider     llm.Provider
	dispatcher   *Dispatcher
	systemPrompt string
	maxToolCalls int
	seed         *int
	obs          *observability.Observability // nil = observability disabled
	logger       *slog.Logger

	mu            sync.Mutex
	conversation  []llm.Message
	toolCallCount int
}

// NewOrchestrator creates a chat loop over provider and dispatcher.
func NewOrchestrator(provider llm.Provider, dispatcher *Dispatcher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		provider:     provider,
		dispatcher:   dispatcher,
		systemPrompt: SystemPrompt,
		maxToolCalls: DefaultMaxToolCalls,
		logger:       logger,
	}
}

// WithSystemPrompt replaces the default system prompt.
func (o *Orchestrator) WithSystemPrompt(prompt string) *Orchestrator {
	o.systemPrompt = prompt
	return o
}

// WithMaxToolCalls sets the cumulative tool call limit. n <= 0 keeps the default.
func (o *Orchestrator) WithMaxToolCalls(n int) *Orchestrator {
	if n > 0 {
		o.maxToolCalls = n
	}
	return o
}

// WithSeed fixes the model's sampling seed.
func (o *Orchestrator) WithSeed(seed *int) *Orchestrator {
	o.seed = seed
	return o
}

// WithObservability attaches metrics and tracing.
func (o *Orchestrator) WithObservability(obs *observability.Observability) *Orchestrator {
	o.obs = obs
	return o
}

// Chat processes one user message and returns the model's final answer.
// A fatal error (model failure, session limit, cancellation) leaves the
// conversation as it was before the call. The tool call counter is not
// rolled back.
func (o *Orchestrator) Chat(ctx context.Context, message string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, correlationID := ensureCorrelationID(ctx)

	var span trace.Span
	if ts := o.obs.TracerOrNil(); ts != nil {
		ctx, span = ts.Tracer().Start(ctx, "agent.chat",
			trace.WithAttributes(observability.AttrCorrelationID.String(correlationID)))
		defer span.End()
	}

	start := len(o.conversation)
	answer, err := o.runTurn(ctx, message)
	if err != nil {
		o.conversation = o.conversation[:start]
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return "", err
	}
	return answer, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, message string) (string, error) {
	correlationID := CorrelationID(ctx)
	o.logger.DebugContext(ctx, "processing message",
		slog.String("correlation_id", correlationID),
		slog.Int("history", len(o.conversation)),
	)

	o.conversation = append(o.conversation, llm.Message{Role: llm.RoleUser, Content: message})
	toolDefs := o.dispatcher.LLMDefinitions()

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := o.provider.SendMessage(ctx, &llm.Request{
			SystemPrompt: o.systemPrompt,
			Messages:     o.conversation,
			Tools:        toolDefs,
			Seed:         o.seed,
		})
		if err != nil {
			return "", fmt.Errorf("llm request failed: %w", err)
		}

		if !resp.HasToolCalls() {
			o.conversation = append(o.conversation, llm.Message{
				Role:    llm.RoleAssistant,
				Content: resp.Message.Content,
			})
			return resp.Message.Content, nil
		}

		calls := resp.Message.ToolCalls
		o.toolCallCount += len(calls)
		if o.toolCallCount > o.maxToolCalls {
			o.obs.MetricsOrNil().RecordSessionLimit()
			o.logger.WarnContext(ctx, "tool call limit exceeded",
				slog.Int("limit", o.maxToolCalls),
				slog.Int("count", o.toolCallCount),
				slog.String("correlation_id", correlationID),
			)
			return "", &SessionLimitError{Limit: o.maxToolCalls}
		}

		o.conversation = append(o.conversation, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Message.Content,
			ToolCalls: calls,
		})

		o.logger.InfoContext(ctx, "executing tool calls",
			slog.Int("tool_calls", len(calls)),
			slog.String("correlation_id", correlationID),
		)
		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			o.conversation = append(o.conversation, o.executeCall(ctx, call))
		}
	}
}

// executeCall dispatches one call and builds the tool message answering it.
func (o *Orchestrator) executeCall(ctx context.Context, call llm.ToolCall) llm.Message {
	id := call.ID
	if id == "" {
		id = UnknownCallID
	}
	result, err := o.dispatcher.Dispatch(ctx, tools.Call{
		ID:        id,
		Name:      call.Name,
		Arguments: call.Arguments,
		Malformed: call.ParseErr != nil,
	})
	content := result.Content
	if err != nil {
		var vErr *tools.ValidationError
		if !errors.As(err, &vErr) {
			o.logger.ErrorContext(ctx, "unexpected dispatch error",
				slog.String("tool", call.Name),
				slog.String("error", err.Error()),
			)
		}
		content = "Error executing tool: " + err.Error()
	}
	return llm.Message{Role: llm.RoleTool, Content: content, ToolCallID: id}
}

// Reset clears the conversation and the tool call counter.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conversation = nil
	o.toolCallCount = 0
}

// Conversation returns a copy of the conversation so far.
func (o *Orchestrator) Conversation() []llm.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]llm.Message(nil), o.conversation...)
}

// ToolCallCount returns the number of tool calls made this session.
func (o *Orchestrator) ToolCallCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.toolCallCount
}

// MaxToolCalls returns the session's tool call limit.
func (o *Orchestrator) MaxToolCalls() int { return o.maxToolCalls }

// ToolDefinitions returns the tools offered to the model.
func (o *Orchestrator) ToolDefinitions() []tools.Definition {
	return o.dispatcher.Definitions()
}
