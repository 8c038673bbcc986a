package sqlite

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/securetools/internal/security"
	"github.com/jkaninda/securetools/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "audit", "audit.db")}, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "audit.db")
	db, err := Open(context.Background(), Config{Path: path}, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if db.Driver() != storage.DriverSQLite {
		t.Errorf("driver = %q, want %q", db.Driver(), storage.DriverSQLite)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), Config{}, discardLogger()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestAuditRepository_AppendAndQuery(t *testing.T) {
	db := openTestDB(t)
	repo := db.Audit()
	ctx := context.Background()

	base := time.Date(2025, 12, 25, 10, 0, 0, 0, time.UTC)
	events := []security.AuditEvent{
		{
			ID: uuid.NewString(), Timestamp: base, CorrelationID: "c1", Caller: "chat",
			Action: security.ActionToolCall, Tool: "get_current_weather",
			ArgumentKeys: []string{"format", "location"}, Result: security.ResultIntent,
		},
		{
			ID: uuid.NewString(), Timestamp: base.Add(time.Second), CorrelationID: "c1", Caller: "chat",
			Action: security.ActionToolCall, Tool: "get_current_weather",
			ArgumentKeys: []string{"format", "location"}, Result: security.ResultSuccess, ContentLength: 84,
		},
		{
			Timestamp: base.Add(2 * time.Second), CorrelationID: "c2", Caller: "mcp",
			Action: security.ActionToolCall, Tool: "nope",
			Result: security.ResultDenied, Error: "Unknown tool requested: nope",
		},
	}
	for _, e := range events {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := repo.Query(ctx, security.AuditQuery{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("events = %d, want 3", len(all))
	}
	if all[0].Tool != "nope" || all[0].Error != "Unknown tool requested: nope" {
		t.Errorf("newest event = %+v", all[0])
	}
	if all[0].ID == "" {
		t.Error("missing id should be generated")
	}

	byCorr, err := repo.Query(ctx, security.AuditQuery{CorrelationID: "c1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byCorr) != 2 {
		t.Fatalf("events for c1 = %d, want 2", len(byCorr))
	}
	if byCorr[0].Result != security.ResultSuccess || byCorr[0].ContentLength != 84 {
		t.Errorf("newest c1 event = %+v", byCorr[0])
	}
	if keys := byCorr[0].ArgumentKeys; len(keys) != 2 || keys[0] != "format" || keys[1] != "location" {
		t.Errorf("argument keys = %v", keys)
	}
	if byCorr[0].ID != events[1].ID {
		t.Errorf("id = %q, want %q", byCorr[0].ID, events[1].ID)
	}

	denied, err := repo.Query(ctx, security.AuditQuery{Result: security.ResultDenied, Limit: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(denied) != 1 || denied[0].Caller != "mcp" {
		t.Errorf("denied = %+v", denied)
	}
}

func TestAuditRepository_ThroughStoreAuditLogger(t *testing.T) {
	db := openTestDB(t)
	auditor := security.NewStoreAuditLogger(db.Audit(), discardLogger())
	ctx := context.Background()

	if err := auditor.LogAction(ctx, security.AuditEvent{
		Caller: "chat", Action: security.ActionToolCall, Tool: "list_available_services", Result: security.ResultSuccess,
	}); err != nil {
		t.Fatalf("LogAction: %v", err)
	}
	got, err := db.Audit().Query(ctx, security.AuditQuery{Tool: "list_available_services"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
}
