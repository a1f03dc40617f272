package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bdobrica/Kaikei/common/redact"
)

// Audit results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// AuditEntry represents an audit log entry
type AuditEntry struct {
	ID           int64
	Timestamp    time.Time
	TraceID      string
	Actor        string
	Action       string
	Target       string
	Payload      map[string]any
	Result       string
	ErrorMessage string
}

// WriteAudit appends e. Payload values are passed through redact.Map so
// addresses are shortened and credentials dropped.
func (s *Store) WriteAudit(ctx context.Context, e AuditEntry) error {
	var payload sql.NullString
	if len(e.Payload) > 0 {
		b, err := json.Marshal(redact.Map(e.Payload))
		if err != nil {
			return fmt.Errorf("failed to marshal audit payload: %w", err)
		}
		payload = sql.NullString{String: string(b), Valid: true}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, actor, action, target, payload_json, result, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ts.UTC(), e.TraceID, e.Actor, e.Action, nullString(e.Target), payload, e.Result, nullString(e.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// AuditByActor returns the most recent entries for actor, newest first.
func (s *Store) AuditByActor(ctx context.Context, actor string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, actor, action, target, payload_json, result, error_message
		FROM audit_log WHERE actor = ? ORDER BY ts DESC, id DESC LIMIT ?
	`, actor, limit)
}

// AuditByTrace returns every entry written during one turn, oldest first.
func (s *Store) AuditByTrace(ctx context.Context, traceID string) ([]AuditEntry, error) {
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, actor, action, target, payload_json, result, error_message
		FROM audit_log WHERE trace_id = ? ORDER BY ts ASC, id ASC
	`, traceID)
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e                        AuditEntry
			target, payload, errText sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TraceID, &e.Actor, &e.Action, &target, &payload, &e.Result, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Target = target.String
		e.ErrorMessage = errText.String
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload %d: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
