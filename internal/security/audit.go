package security

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const auditFileMode = 0o600

// AuditLogger appends one JSON object per line to a local file.
// Safe for concurrent use.
type AuditLogger struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	enc    *json.Encoder
	logger *slog.Logger
}

// NewAuditLogger opens path for appending, creating it and its directory
// if needed. An existing file is narrowed to owner-only access.
func NewAuditLogger(path string, logger *slog.Logger) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, auditFileMode)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	if err := f.Chmod(auditFileMode); err != nil {
		f.Close()
		return nil, fmt.Errorf("restricting audit log %s: %w", path, err)
	}
	return &AuditLogger{
		path:   path,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger,
	}, nil
}

// Path returns the file being written.
func (a *AuditLogger) Path() string { return a.path }

// LogAction writes event as a single line.
func (a *AuditLogger) LogAction(ctx context.Context, event AuditEvent) error {
	a.mu.Lock()
	err := a.enc.Encode(event)
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}

	a.logger.DebugContext(ctx, "audit event logged",
		slog.String("tool", event.Tool),
		slog.String("result", event.Result),
		slog.String("correlation_id", event.CorrelationID),
	)
	return nil
}

// Close syncs and closes the file.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.file.Sync(); err != nil {
		a.file.Close()
		return fmt.Errorf("syncing audit log: %w", err)
	}
	return a.file.Close()
}

// AuditQuery selects events when reading the trail back.
// Empty fields match everything.
type AuditQuery struct {
	Tool          string
	CorrelationID string
	Result        string
	Limit         int // 0 = no limit
}

// Match reports whether ev satisfies q.
func (q AuditQuery) Match(ev AuditEvent) bool {
	return (q.Tool == "" || ev.Tool == q.Tool) &&
		(q.CorrelationID == "" || ev.CorrelationID == q.CorrelationID) &&
		(q.Result == "" || ev.Result == q.Result)
}

// ReadAuditLog returns the matching events of a JSONL audit file, newest
// first. A missing file yields no events. Malformed lines are skipped.
func ReadAuditLog(path string, q AuditQuery) ([]AuditEvent, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	defer f.Close()

	var events []AuditEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var ev AuditEvent
		if json.Unmarshal(sc.Bytes(), &ev) != nil {
			continue
		}
		if q.Match(ev) {
			events = append(events, ev)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log %s: %w", path, err)
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if q.Limit > 0 && len(events) > q.Limit {
		events = events[:q.Limit]
	}
	return events, nil
}
