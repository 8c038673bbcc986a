package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/securetools/internal/llm"
	"github.com/jkaninda/securetools/internal/secrets"
	"github.com/jkaninda/securetools/internal/tools"
)

// --- InstrumentedProvider ---

// InstrumentedProvider wraps an llm.Provider with metrics and tracing.
type InstrumentedProvider struct {
	inner   llm.Provider
	model   string
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedProvider wraps an LLM provider with observability.
func NewInstrumentedProvider(inner llm.Provider, model string, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedProvider {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedProvider{
		inner:   inner,
		model:   model,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

func (p *InstrumentedProvider) SendMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	provider := p.inner.Name()

	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "llm.send_message",
			trace.WithAttributes(
				attribute.String("llm.provider", provider),
				attribute.String("llm.model", p.model),
				attribute.Int("llm.messages", len(req.Messages)),
				attribute.Int("llm.tools", len(req.Tools)),
			))
		defer span.End()
	}

	start := time.Now()
	resp, err := p.inner.SendMessage(ctx, req)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		if p.tracer != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	if p.metrics != nil {
		p.metrics.LLMRequestsTotal.WithLabelValues(provider, p.model, status).Inc()
		p.metrics.LLMRequestDuration.WithLabelValues(provider, p.model).Observe(duration)

		if resp != nil {
			p.metrics.LLMTokensUsed.WithLabelValues(provider, p.model, "input").Add(float64(resp.Usage.InputTokens))
			p.metrics.LLMTokensUsed.WithLabelValues(provider, p.model, "output").Add(float64(resp.Usage.OutputTokens))
		}
	}

	return resp, err
}

// --- InstrumentedToolExecutor ---

// ToolExecutor is the broker's execution entry point.
type ToolExecutor interface {
	Execute(ctx context.Context, call tools.Call) tools.Result
}

// InstrumentedToolExecutor wraps a ToolExecutor with metrics and tracing.
// Spans record the tool name and outcome; arguments and content are left out.
type InstrumentedToolExecutor struct {
	inner   ToolExecutor
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedToolExecutor wraps a tool executor with observability.
func NewInstrumentedToolExecutor(inner ToolExecutor, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedToolExecutor {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedToolExecutor{inner: inner, metrics: metrics, tracer: tracer}
}

func (e *InstrumentedToolExecutor) Execute(ctx context.Context, call tools.Call) tools.Result {
	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "broker.execute",
			trace.WithAttributes(
				AttrTool.String(call.Name),
				attribute.String("tool.call_id", call.ID),
			))
		defer span.End()
	}

	start := time.Now()
	result := e.inner.Execute(ctx, call)
	duration := time.Since(start).Seconds()

	status := "success"
	if !result.Success {
		status = "failure"
		if span != nil {
			span.SetStatus(codes.Error, "tool execution failed")
		}
	}
	if span != nil {
		span.SetAttributes(attribute.Int("tool.content_length", len(result.Content)))
	}

	if e.metrics != nil {
		e.metrics.ToolExecutionsTotal.WithLabelValues(call.Name, status).Inc()
		e.metrics.ToolExecutionDuration.WithLabelValues(call.Name).Observe(duration)
	}

	return result
}

// --- InstrumentedStore ---

// InstrumentedStore wraps a secrets.StoreReader with metrics and tracing.
// The URI is not recorded since it names the credential.
type InstrumentedStore struct {
	inner   secrets.StoreReader
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedStore wraps a secret store with observability.
func NewInstrumentedStore(inner secrets.StoreReader, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedStore {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedStore{inner: inner, metrics: metrics, tracer: tracer}
}

func (s *InstrumentedStore) Name() string { return s.inner.Name() }

func (s *InstrumentedStore) Read(ctx context.Context, uri string) (*secrets.Secret, error) {
	store := s.inner.Name()

	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "secrets.store_read",
			trace.WithAttributes(AttrSecretSource.String(store)))
		defer span.End()
	}

	start := time.Now()
	secret, err := s.inner.Read(ctx, uri)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		if s.tracer != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, "store read failed")
		}
	}

	if s.metrics != nil {
		s.metrics.StoreReadsTotal.WithLabelValues(store, status).Inc()
		s.metrics.StoreReadDuration.WithLabelValues(store).Observe(duration)
	}

	return secret, err
}

// --- Compile-time interface checks ---

var (
	_ llm.Provider        = (*InstrumentedProvider)(nil)
	_ ToolExecutor        = (*InstrumentedToolExecutor)(nil)
	_ secrets.StoreReader = (*InstrumentedStore)(nil)
)

// statusCode returns the HTTP status code as a string for metric labels.
func statusCode(code int) string {
	return strconv.Itoa(code)
}
