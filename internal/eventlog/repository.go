package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo implements Log with PostgreSQL.
type Repo struct {
	q db.Querier
}

// New creates a new event log repository bound to the pool.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{q: pool}
}

// Compile-time check that Repo implements Log.
var _ Log = (*Repo)(nil)

// WithQuerier returns a copy of the repository bound to q (typically a
// transaction).
func (r *Repo) WithQuerier(q db.Querier) Log {
	return &Repo{q: q}
}

// Append inserts one audit entry. The log is append-only; there is no update
// or delete path.
func (r *Repo) Append(ctx context.Context, workspaceID uuid.UUID, leadID *uuid.UUID, eventType string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	query := `
		INSERT INTO event_log (workspace_id, lead_id, type, payload)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.q.Exec(ctx, query, workspaceID, leadID, eventType, data); err != nil {
		return fmt.Errorf("append event log: %w", err)
	}
	return nil
}

// ListByLead returns a lead's entries ordered by timestamp then insertion
// order. That per-lead ordering is the only guarantee the log offers.
func (r *Repo) ListByLead(ctx context.Context, workspaceID, leadID uuid.UUID) ([]Entry, error) {
	query := `
		SELECT id, workspace_id, lead_id, type, payload, created_at
		FROM event_log
		WHERE workspace_id = $1 AND lead_id = $2
		ORDER BY created_at ASC, id ASC`

	rows, err := r.q.Query(ctx, query, workspaceID, leadID)
	if err != nil {
		return nil, fmt.Errorf("list event log: %w", err)
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		var e Entry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.LeadID, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event log entry: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		results = append(results, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event log: %w", err)
	}

	return results, nil
}
