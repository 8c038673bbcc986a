package security

import (
	"context"
	"log/slog"
)

// AuditStore is an append-only store for audit events.
// No update or delete methods; immutability is enforced at the interface level.
type AuditStore interface {
	Append(ctx context.Context, event AuditEvent) error
}

// StoreAuditLogger adapts an AuditStore to the Auditor interface.
type StoreAuditLogger struct {
	store  AuditStore
	logger *slog.Logger
}

// NewStoreAuditLogger creates a database-backed audit logger.
func NewStoreAuditLogger(store AuditStore, logger *slog.Logger) *StoreAuditLogger {
	return &StoreAuditLogger{store: store, logger: logger}
}

// LogAction appends an audit event to the store.
func (a *StoreAuditLogger) LogAction(ctx context.Context, event AuditEvent) error {
	if err := a.store.Append(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to log audit event",
			slog.String("tool", event.Tool),
			slog.String("error", err.Error()),
		)
		return err
	}
	a.logger.DebugContext(ctx, "audit event logged (db)",
		slog.String("tool", event.Tool),
		slog.String("result", event.Result),
		slog.String("correlation_id", event.CorrelationID),
	)
	return nil
}

// Close is a no-op. The database connection is owned by the storage layer.
func (a *StoreAuditLogger) Close() error {
	return nil
}
