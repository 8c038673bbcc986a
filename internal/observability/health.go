package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const readinessTimeout = 3 * time.Second

// Readiness states. A failing optional dependency degrades the process;
// a failing required one makes it unavailable.
const (
	StatusOK          = "ok"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
)

// DependencyCheck probes one backend the runner relies on: the audit
// database, the secret store or the model server.
type DependencyCheck struct {
	Name     string
	Required bool
	Probe    func(ctx context.Context) error
}

// HealthStatus is the body of /healthz and /readyz.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult reports a single probe.
type CheckResult struct {
	Status     string `json:"status"` // "ok" or "fail"
	Required   bool   `json:"required"`
	DurationMS int64  `json:"duration_ms"`
	Message    string `json:"message,omitempty"`
}

// HealthChecker runs dependency probes for the readiness endpoint.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []DependencyCheck
	logger *slog.Logger
}

func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{logger: logger}
}

// AddCheck registers a required probe.
func (h *HealthChecker) AddCheck(name string, probe func(ctx context.Context) error) {
	h.Register(DependencyCheck{Name: name, Required: true, Probe: probe})
}

// AddOptionalCheck registers a probe whose failure only degrades readiness.
func (h *HealthChecker) AddOptionalCheck(name string, probe func(ctx context.Context) error) {
	h.Register(DependencyCheck{Name: name, Probe: probe})
}

func (h *HealthChecker) Register(c DependencyCheck) {
	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// CheckHealth is the liveness answer: the process is up.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{Status: StatusOK}
}

// CheckReady runs every probe concurrently under a shared deadline.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]DependencyCheck(nil), h.checks...)
	h.mu.RUnlock()
	if len(checks) == 0 {
		return HealthStatus{Status: StatusOK}
	}

	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := c.Probe(ctx)
			r := CheckResult{
				Status:     StatusOK,
				Required:   c.Required,
				DurationMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				r.Status = "fail"
				r.Message = err.Error()
			}
			results[i] = r
		}()
	}
	wg.Wait()

	status := HealthStatus{Status: StatusOK, Checks: make(map[string]CheckResult, len(checks))}
	for i, c := range checks {
		r := results[i]
		status.Checks[c.Name] = r
		if r.Status == StatusOK {
			continue
		}
		if c.Required {
			status.Status = StatusUnavailable
		} else if status.Status == StatusOK {
			status.Status = StatusDegraded
		}
		if h.logger != nil {
			h.logger.Warn("readiness probe failed",
				slog.String("check", c.Name),
				slog.Bool("required", c.Required),
				slog.String("error", r.Message),
			)
		}
	}
	return status
}
