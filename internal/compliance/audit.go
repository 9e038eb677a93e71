// Package compliance records an append-only audit trail of clinical actions.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// AuditEventType represents the type of audited action.
type AuditEventType string

const (
	EventAccountLogin        AuditEventType = "account.login"
	EventAccountCreated      AuditEventType = "account.created"
	EventAccountUpdated      AuditEventType = "account.updated"
	EventPatientCreated      AuditEventType = "patient.created"
	EventPatientLinked       AuditEventType = "patient.linked"
	EventAppointmentCreated  AuditEventType = "appointment.created"
	EventAppointmentStatus   AuditEventType = "appointment.status_changed"
	EventAppointmentDeleted  AuditEventType = "appointment.deleted"
	EventPrescriptionCreated AuditEventType = "prescription.created"
)

// AuditEvent represents an immutable audit record.
type AuditEvent struct {
	ID         string          `json:"id"`
	EventType  AuditEventType  `json:"event_type"`
	ActorID    string          `json:"actor_id,omitempty"`
	ActorRole  string          `json:"actor_role,omitempty"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Recorder persists audit events. Services depend on this rather than on
// AuditService so tests and memory deployments can skip persistence.
type Recorder interface {
	LogEvent(ctx context.Context, event AuditEvent) error
}

// AuditService handles audit logging against a SQL database.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, actor_id, actor_role, entity_type, entity_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		nullString(event.ActorID),
		nullString(event.ActorRole),
		nullString(event.EntityType),
		nullString(event.EntityID),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	ActorID    string
	EntityID   string
	EventTypes []AuditEventType
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
	Offset     int
}

// QueryEvents retrieves audit events with filters, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		add("event_type = ANY($%d)", pq.Array(types))
	}
	if !filter.StartTime.IsZero() {
		add("created_at >= $%d", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		add("created_at <= $%d", filter.EndTime)
	}

	query := `
		SELECT id, event_type, actor_id, actor_role, entity_type, entity_id, details, created_at
		FROM audit_events
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		var e AuditEvent
		var actorID, actorRole, entityType, entityID sql.NullString
		var details []byte
		if err := rows.Scan(
			&e.ID, &e.EventType, &actorID, &actorRole, &entityType, &entityID, &details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.ActorID = actorID.String
		e.ActorRole = actorRole.String
		e.EntityType = entityType.String
		e.EntityID = entityID.String
		e.Details = details
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: iterate audit events: %w", err)
	}

	return events, nil
}

// Emit records event on r, logging instead of failing the caller. A nil
// recorder is a no-op.
func Emit(ctx context.Context, r Recorder, logger *logging.Logger, event AuditEvent) {
	if r == nil {
		return
	}
	if err := r.LogEvent(ctx, event); err != nil {
		if logger == nil {
			logger = logging.Default()
		}
		logger.Warn("audit event not recorded", "event_type", event.EventType, "entity_id", event.EntityID, "error", err)
	}
}

// Details marshals v for AuditEvent.Details, returning nil on failure.
func Details(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
