package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Actions recorded by the HTTP layer.
const (
	ActionEmployeeCreate = "employee.create"
	ActionEmployeeMove   = "employee.assign_manager"
	ActionEmployeeRole   = "employee.change_role"
	ActionEmployeeDelete = "employee.delete"
	ActionRequestCreate  = "request.create"
	ActionRequestStatus  = "request.transition"
	ActionRequestCancel  = "request.cancel"
	ActionSnapshotImport = "snapshot.import"
	ActionAuthLogin      = "auth.login"
)

const (
	EntityEmployee = "employee"
	EntityRequest  = "request"
	EntitySnapshot = "snapshot"
	EntitySession  = "session"
)

type Event struct {
	ID         int64           `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorID    string
}

// Recorder persists one audit event per successful mutation.
type Recorder interface {
	Record(ctx context.Context, evt Event, before, after any) error
}

// Lister reads recorded events back, newest first.
type Lister interface {
	List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error)
}

// Store records events in the audit_events table.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) Record(ctx context.Context, evt Event, before, after any) error {
	beforeJSON, err := encode(before)
	if err != nil {
		return errors.Wrap(err, "encode audit before")
	}
	afterJSON, err := encode(after)
	if err != nil {
		return errors.Wrap(err, "encode audit after")
	}

	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (actor_id, action, entity_type, entity_id, before_json, after_json, request_id, ip)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, beforeJSON, afterJSON, evt.RequestID, evt.IP)
	if err != nil {
		return errors.Wrap(err, "insert audit event")
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	query, args := buildQuery("SELECT id, actor_id, action, entity_type, entity_id, request_id, ip, created_at, before_json, after_json", filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list audit events")
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID,
			&evt.RequestID, &evt.IP, &evt.CreatedAt, &evt.Before, &evt.After); err != nil {
			return nil, errors.Wrap(err, "scan audit event")
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildQuery(prefix string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE 1=1"
	var args []any
	for _, cond := range []struct {
		column string
		value  string
	}{
		{"action", filter.Action},
		{"entity_type", filter.EntityType},
		{"entity_id", filter.EntityID},
		{"actor_id", filter.ActorID},
	} {
		if cond.value == "" {
			continue
		}
		args = append(args, cond.value)
		query += fmt.Sprintf(" AND %s = $%d", cond.column, len(args))
	}
	return query, args
}

// LogRecorder writes events to a structured logger. It backs the audit
// trail when the service runs without a database.
type LogRecorder struct {
	Logger *slog.Logger
}

func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{Logger: logger}
}

func (r *LogRecorder) Record(ctx context.Context, evt Event, before, after any) error {
	beforeJSON, err := encode(before)
	if err != nil {
		return errors.Wrap(err, "encode audit before")
	}
	afterJSON, err := encode(after)
	if err != nil {
		return errors.Wrap(err, "encode audit after")
	}
	r.Logger.InfoContext(ctx, "audit",
		"actor_id", evt.ActorID,
		"action", evt.Action,
		"entity_type", evt.EntityType,
		"entity_id", evt.EntityID,
		"request_id", evt.RequestID,
		"ip", evt.IP,
		"before", string(beforeJSON),
		"after", string(afterJSON),
	)
	return nil
}

func encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
