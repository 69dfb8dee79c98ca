package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskqueue/internal/domain"
)

type Payload map[string]any

// Record is an event before it has been assigned an id and timestamp.
type Record struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	Payload    Payload
}

// Sink receives an event for every successful mutation.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// Reader reads back stored events.
type Reader interface {
	Latest(ctx context.Context, n int, projectID, evtType string) ([]domain.Event, error)
	After(ctx context.Context, limit int, afterID int64) ([]domain.Event, error)
	LatestID(ctx context.Context) (int64, error)
}

// Writer stores events in the SQLite events table.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, rec Record) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if rec.Payload == nil {
		rec.Payload = Payload{}
	}
	data, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, rec.Type, nullable(rec.ProjectID), rec.EntityKind, nullable(rec.EntityID), string(data))
	return err
}

// Latest returns up to n events, newest first, optionally filtered.
func (w Writer) Latest(ctx context.Context, n int, projectID, evtType string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	var clauses []string
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	query := `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)
	return w.query(ctx, query, args...)
}

// After returns events with id greater than afterID, oldest first.
func (w Writer) After(ctx context.Context, limit int, afterID int64) ([]domain.Event, error) {
	return w.query(ctx, `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, afterID, limit)
}

func (w Writer) LatestID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := w.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (w Writer) query(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LogSink writes events to a logger instead of storing them.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Append(ctx context.Context, rec Record) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.LogAttrs(ctx, slog.LevelInfo, "event",
		slog.String("type", rec.Type),
		slog.String("project_id", rec.ProjectID),
		slog.String("entity_kind", rec.EntityKind),
		slog.String("entity_id", rec.EntityID),
		slog.Any("payload", map[string]any(rec.Payload)),
	)
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
