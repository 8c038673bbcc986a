package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/jkaninda/securetools/internal/config"
	"github.com/jkaninda/securetools/internal/llm"
	"github.com/jkaninda/securetools/internal/secrets"
	"github.com/jkaninda/securetools/internal/tools"
)

// --- No-op Path ---

func TestNew_NilConfig(t *testing.T) {
	obs, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New(nil) error: %v", err)
	}
	if obs != nil {
		t.Fatal("expected nil Observability for nil config")
	}
}

func TestNew_AllDisabled(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs == nil {
		t.Fatal("expected non-nil Observability")
	}
	if obs.Metrics != nil {
		t.Error("metrics should be nil when not enabled")
	}
	if obs.Tracer != nil {
		t.Error("tracer should be nil when not enabled")
	}
	if obs.Health == nil {
		t.Error("health checker should always be created")
	}
}

func TestNew_MetricsEnabled(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{Metrics: &config.MetricsConfig{Enabled: true}}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if obs.MetricsOrNil() == nil {
		t.Error("metrics should be created when enabled")
	}
}

func TestObservability_NilSafe(t *testing.T) {
	var obs *Observability
	obs.Shutdown(context.Background())
	if obs.TracerOrNil() != nil {
		t.Error("expected nil tracer from nil Observability")
	}
	if obs.MetricsOrNil() != nil {
		t.Error("expected nil metrics from nil Observability")
	}

	var m *MetricsCollector
	m.RecordSecretResolution("env", "resolved")
	m.RecordSecurityCheck("allow_list", false)
	m.RecordSessionLimit()
	m.RecordCacheFlush()
}

// --- MetricsCollector ---

func TestMetricsCollector_Created(t *testing.T) {
	m := NewMetricsCollector()
	if m.Registry == nil {
		t.Fatal("expected non-nil Registry")
	}

	// CounterVecs only appear in Gather after first use.
	m.LLMRequestsTotal.WithLabelValues("test", "m", "success").Inc()
	m.RecordSecretResolution("env", "resolved")
	m.RecordSecurityCheck("allow_list", true)
	m.RecordSessionLimit()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, expected := range []string{
		"securetools_llm_requests_total",
		"securetools_secrets_resolutions_total",
		"securetools_security_checks_total",
		"securetools_security_session_limit_exceeded_total",
	} {
		if !names[expected] {
			t.Errorf("metric %q not found in registry", expected)
		}
	}
}

func TestMetricsCollector_SecretResolutions(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordSecretResolution("onepassword", "resolved")
	m.RecordSecretResolution("cache", "resolved")
	m.RecordSecretResolution("cache", "resolved")
	m.RecordSecretResolution("none", "unavailable")

	if v := counterValue(t, m.Registry, "securetools_secrets_resolutions_total", prometheus.Labels{"source": "cache", "outcome": "resolved"}); v != 2 {
		t.Errorf("cache resolutions = %v, want 2", v)
	}
	if v := counterValue(t, m.Registry, "securetools_secrets_resolutions_total", prometheus.Labels{"source": "none", "outcome": "unavailable"}); v != 1 {
		t.Errorf("unavailable = %v, want 1", v)
	}
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	m := make(map[string]string)
	for _, p := range pairs {
		m[p.GetName()] = p.GetValue()
	}
	return m
}

// --- HealthChecker ---

func TestHealthChecker_NoChecks(t *testing.T) {
	h := NewHealthChecker(nil)
	status := h.CheckReady(context.Background())
	if status.Status != "ok" {
		t.Errorf("status = %q, want ok", status.Status)
	}
}

func TestHealthChecker_OptionalFailureDegrades(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddOptionalCheck("ollama", func(ctx context.Context) error { return errors.New("connection refused") })
	h.AddCheck("audit_db", func(ctx context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Status != StatusDegraded {
		t.Errorf("status = %q, want degraded", status.Status)
	}
	if r := status.Checks["ollama"]; r.Status != "fail" || r.Required || r.Message != "connection refused" {
		t.Errorf("ollama check = %+v", r)
	}
	if r := status.Checks["audit_db"]; r.Status != StatusOK || !r.Required {
		t.Errorf("audit_db check = %+v", r)
	}
}

func TestHealthChecker_RequiredFailureUnavailable(t *testing.T) {
	h := NewHealthChecker(nil)
	h.AddOptionalCheck("secret_store", func(ctx context.Context) error { return errors.New("not signed in") })
	h.AddCheck("audit_db", func(ctx context.Context) error { return errors.New("database is locked") })

	status := h.CheckReady(context.Background())
	if status.Status != StatusUnavailable {
		t.Errorf("status = %q, want unavailable", status.Status)
	}
	if len(status.Checks) != 2 {
		t.Errorf("checks = %d, want 2", len(status.Checks))
	}
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(nil)
	if status := h.CheckHealth(); status.Status != "ok" {
		t.Errorf("liveness status = %q, want ok", status.Status)
	}
}

// --- InstrumentedProvider (wrapper) ---

type mockProvider struct {
	name   string
	resp   *llm.Response
	err    error
	called int
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) SendMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.called++
	return m.resp, m.err
}

func TestInstrumentedProvider_Success(t *testing.T) {
	metrics := NewMetricsCollector()
	inner := &mockProvider{
		name: "ollama",
		resp: &llm.Response{
			Message: llm.Message{Role: llm.RoleAssistant, Content: "hello"},
			Usage:   llm.Usage{InputTokens: 10, OutputTokens: 20},
		},
	}

	p := NewInstrumentedProvider(inner, "llama3.1:8b", metrics, nil)
	resp, err := p.SendMessage(context.Background(), &llm.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "hello" {
		t.Errorf("content = %q, want hello", resp.Message.Content)
	}
	if inner.called != 1 {
		t.Errorf("inner called %d times, want 1", inner.called)
	}

	val := counterValue(t, metrics.Registry, "securetools_llm_requests_total", prometheus.Labels{"provider": "ollama", "model": "llama3.1:8b", "status": "success"})
	if val != 1 {
		t.Errorf("requests_total = %v, want 1", val)
	}
	out := counterValue(t, metrics.Registry, "securetools_llm_tokens_used_total", prometheus.Labels{"direction": "output"})
	if out != 20 {
		t.Errorf("output tokens = %v, want 20", out)
	}
}

func TestInstrumentedProvider_Error(t *testing.T) {
	metrics := NewMetricsCollector()
	inner := &mockProvider{name: "ollama", err: errors.New("api error")}

	p := NewInstrumentedProvider(inner, "m", metrics, nil)
	if _, err := p.SendMessage(context.Background(), &llm.Request{}); err == nil {
		t.Fatal("expected error")
	}

	val := counterValue(t, metrics.Registry, "securetools_llm_requests_total", prometheus.Labels{"provider": "ollama", "status": "error"})
	if val != 1 {
		t.Errorf("error requests_total = %v, want 1", val)
	}
}

func TestInstrumentedProvider_NilMetrics(t *testing.T) {
	inner := &mockProvider{name: "test", resp: &llm.Response{}}
	p := NewInstrumentedProvider(inner, "m", nil, nil)
	if _, err := p.SendMessage(context.Background(), &llm.Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "test" {
		t.Errorf("name = %q, want test", p.Name())
	}
}

// --- InstrumentedToolExecutor (wrapper) ---

type mockExecutor struct {
	result tools.Result
}

func (m *mockExecutor) Execute(ctx context.Context, call tools.Call) tools.Result {
	return m.result
}

func TestInstrumentedToolExecutor(t *testing.T) {
	metrics := NewMetricsCollector()
	e := NewInstrumentedToolExecutor(&mockExecutor{result: tools.Result{Success: true, Content: "ok"}}, metrics, nil)
	if res := e.Execute(context.Background(), tools.Call{Name: "get_current_weather"}); res.Content != "ok" {
		t.Errorf("content = %q, want ok", res.Content)
	}

	failing := NewInstrumentedToolExecutor(&mockExecutor{result: tools.Result{Success: false}}, metrics, nil)
	failing.Execute(context.Background(), tools.Call{Name: "get_current_weather"})

	if v := counterValue(t, metrics.Registry, "securetools_tool_executions_total", prometheus.Labels{"tool": "get_current_weather", "status": "success"}); v != 1 {
		t.Errorf("success = %v, want 1", v)
	}
	if v := counterValue(t, metrics.Registry, "securetools_tool_executions_total", prometheus.Labels{"tool": "get_current_weather", "status": "failure"}); v != 1 {
		t.Errorf("failure = %v, want 1", v)
	}
}

// --- InstrumentedStore (wrapper) ---

type mockStore struct {
	err error
}

func (m *mockStore) Name() string { return "onepassword" }
func (m *mockStore) Read(ctx context.Context, uri string) (*secrets.Secret, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &secrets.Secret{Value: "v"}, nil
}

func TestInstrumentedStore(t *testing.T) {
	metrics := NewMetricsCollector()
	s := NewInstrumentedStore(&mockStore{err: secrets.ErrStoreTimeout}, metrics, nil)
	_, err := s.Read(context.Background(), "op://V/I/f")
	if !errors.Is(err, secrets.ErrStoreTimeout) {
		t.Fatalf("expected ErrStoreTimeout, got %v", err)
	}
	if s.Name() != "onepassword" {
		t.Errorf("name = %q", s.Name())
	}
	if v := counterValue(t, metrics.Registry, "securetools_secrets_store_reads_total", prometheus.Labels{"store": "onepassword", "status": "error"}); v != 1 {
		t.Errorf("store errors = %v, want 1", v)
	}
}

// --- HTTP ---

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewMetricsCollector()

	handler := HTTPMetricsMiddleware(metrics, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}

	val := counterValue(t, metrics.Registry, "securetools_http_requests_total", prometheus.Labels{"method": "GET", "path": "/test", "status_code": "418"})
	if val != 1 {
		t.Errorf("http requests = %v, want 1", val)
	}
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	handler := HTTPMetricsMiddleware(nil, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMetricsHandler(t *testing.T) {
	metrics := NewMetricsCollector()
	metrics.RecordCacheFlush()

	srv := httptest.NewServer(MetricsHandler(metrics))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "securetools_secrets_cache_flushes_total 1") {
		t.Errorf("cache flush counter missing from output:\n%s", body)
	}
}

func TestNewServer_DefaultAddr(t *testing.T) {
	s := NewServer("", nil, nil)
	if s.Addr() != DefaultListenAddr {
		t.Errorf("addr = %q, want %q", s.Addr(), DefaultListenAddr)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
}

// --- Helpers ---

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels prometheus.Labels) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			lm := labelMap(metric.GetLabel())
			match := true
			for k, v := range labels {
				if lm[k] != v {
					match = false
					break
				}
			}
			if match {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// --- Tracing ---

func TestNewTracerSetup_Disabled(t *testing.T) {
	ts, err := NewTracerSetup(&config.TracingConfig{Enabled: false})
	if err != nil || ts != nil {
		t.Fatalf("got %v, %v; want nil, nil", ts, err)
	}
	if ts.Tracer() == nil {
		t.Error("nil setup should hand out a no-op tracer")
	}
	if err := ts.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on nil setup: %v", err)
	}
}

func TestNewTracerSetup_UnsupportedProtocol(t *testing.T) {
	_, err := NewTracerSetup(&config.TracingConfig{Enabled: true, Protocol: "kafka"})
	if err == nil || !strings.Contains(err.Error(), "unsupported protocol") {
		t.Fatalf("expected unsupported protocol error, got %v", err)
	}
}

func TestNewSampler(t *testing.T) {
	for _, rate := range []float64{0, -1, 1, 2} {
		if got := newSampler(rate).Description(); !strings.Contains(got, "AlwaysOnSampler") {
			t.Errorf("rate %v: sampler = %q, want always-on root", rate, got)
		}
	}
	if got := newSampler(0.25).Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Errorf("rate 0.25: sampler = %q", got)
	}
}
