package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkaninda/securetools/internal/security"
)

// AuditEventModel maps to the "audit_events" table.
// No UpdatedAt or DeletedAt: the audit log is append-only.
type AuditEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CorrelationID string    `gorm:"index"`
	Caller        string    `gorm:"not null"`
	Action        string    `gorm:"not null"`
	Tool          string    `gorm:"not null;index"`
	ArgumentKeys  string    // comma-separated names, never values
	Result        string    `gorm:"not null"`
	ContentLength int
	Error         string
	CreatedAt     time.Time `gorm:"index"`
}

func (AuditEventModel) TableName() string { return "audit_events" }

// AuditRepository implements security.AuditStore.
// Append-only: no Update or Delete methods exist on this type.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts a single audit event.
func (r *AuditRepository) Append(ctx context.Context, event security.AuditEvent) error {
	model := toAuditModel(event)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// Query returns matching audit events newest first, at most 100 unless
// f.Limit says otherwise.
func (r *AuditRepository) Query(ctx context.Context, f security.AuditQuery) ([]security.AuditEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if f.Tool != "" {
		q = q.Where("tool = ?", f.Tool)
	}
	if f.CorrelationID != "" {
		q = q.Where("correlation_id = ?", f.CorrelationID)
	}
	if f.Result != "" {
		q = q.Where("result = ?", f.Result)
	}

	var models []AuditEventModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	events := make([]security.AuditEvent, len(models))
	for i := range models {
		events[i] = toAuditDomain(&models[i])
	}
	return events, nil
}

func toAuditModel(e security.AuditEvent) AuditEventModel {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		id = uuid.New()
	}
	created := e.Timestamp
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return AuditEventModel{
		ID:            id,
		CorrelationID: e.CorrelationID,
		Caller:        e.Caller,
		Action:        e.Action,
		Tool:          e.Tool,
		ArgumentKeys:  strings.Join(e.ArgumentKeys, ","),
		Result:        e.Result,
		ContentLength: e.ContentLength,
		Error:         e.Error,
		CreatedAt:     created,
	}
}

func toAuditDomain(m *AuditEventModel) security.AuditEvent {
	var keys []string
	if m.ArgumentKeys != "" {
		keys = strings.Split(m.ArgumentKeys, ",")
	}
	return security.AuditEvent{
		ID:            m.ID.String(),
		Timestamp:     m.CreatedAt,
		CorrelationID: m.CorrelationID,
		Caller:        m.Caller,
		Action:        m.Action,
		Tool:          m.Tool,
		ArgumentKeys:  keys,
		Result:        m.Result,
		ContentLength: m.ContentLength,
		Error:         m.Error,
	}
}

var _ security.AuditStore = (*AuditRepository)(nil)
