package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const slaNotFoundMessage = "sla state not found"

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	q db.Querier
}

// New creates a new SLA state repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{q: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// WithQuerier returns a copy bound to q (typically a transaction).
func (r *Repo) WithQuerier(q db.Querier) Repository {
	return &Repo{q: q}
}

// Create inserts a fresh clock for the lead.
func (r *Repo) Create(ctx context.Context, leadID uuid.UUID, startedAt, deadlineAt time.Time) (SLAState, error) {
	query := `
		INSERT INTO sla_states (lead_id, started_at, deadline_at)
		VALUES ($1, $2, $3)
		RETURNING id`

	state := SLAState{LeadID: leadID, StartedAt: startedAt, DeadlineAt: deadlineAt}
	if err := r.q.QueryRow(ctx, query, leadID, startedAt, deadlineAt).Scan(&state.ID); err != nil {
		return SLAState{}, fmt.Errorf("create sla state: %w", err)
	}
	return state, nil
}

// GetByLead retrieves a lead's clock.
func (r *Repo) GetByLead(ctx context.Context, leadID uuid.UUID) (SLAState, error) {
	query := `
		SELECT s.id, s.lead_id, l.workspace_id, s.started_at, s.deadline_at, s.stopped_at, s.stop_reason, s.breached_at
		FROM sla_states s
		JOIN leads l ON l.id = s.lead_id
		WHERE s.lead_id = $1`

	var state SLAState
	err := r.q.QueryRow(ctx, query, leadID).Scan(
		&state.ID, &state.LeadID, &state.WorkspaceID, &state.StartedAt, &state.DeadlineAt,
		&state.StoppedAt, &state.StopReason, &state.BreachedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SLAState{}, apperr.NotFound(slaNotFoundMessage)
		}
		return SLAState{}, fmt.Errorf("get sla state: %w", err)
	}
	return state, nil
}

// Stop performs the conditional stop update. The WHERE stopped_at IS NULL
// predicate plus the affected-row check is what makes concurrent stop
// attempts (duplicate proof webhooks, manual stops) collapse to one winner.
func (r *Repo) Stop(ctx context.Context, leadID uuid.UUID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE sla_states
		SET stopped_at = $2, stop_reason = $3
		WHERE lead_id = $1 AND stopped_at IS NULL`

	tag, err := r.q.Exec(ctx, query, leadID, at, reason)
	if err != nil {
		return false, fmt.Errorf("stop sla clock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListOverdue selects running clocks past their deadline.
func (r *Repo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]SLAState, error) {
	query := `
		SELECT s.id, s.lead_id, l.workspace_id, s.started_at, s.deadline_at, s.stopped_at, s.stop_reason, s.breached_at
		FROM sla_states s
		JOIN leads l ON l.id = s.lead_id
		WHERE s.deadline_at <= $1 AND s.breached_at IS NULL AND s.stopped_at IS NULL
		ORDER BY s.deadline_at ASC
		LIMIT $2`

	rows, err := r.q.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue sla states: %w", err)
	}
	defer rows.Close()

	var results []SLAState
	for rows.Next() {
		var state SLAState
		if err := rows.Scan(
			&state.ID, &state.LeadID, &state.WorkspaceID, &state.StartedAt, &state.DeadlineAt,
			&state.StoppedAt, &state.StopReason, &state.BreachedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sla state: %w", err)
		}
		results = append(results, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sla states: %w", err)
	}
	return results, nil
}

// MarkBreached performs the conditional breach update. A clock stopped
// between selection and update is skipped, keeping the invariant that a
// stopped clock never breaches.
func (r *Repo) MarkBreached(ctx context.Context, leadID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE sla_states
		SET breached_at = $2
		WHERE lead_id = $1 AND breached_at IS NULL AND stopped_at IS NULL`

	tag, err := r.q.Exec(ctx, query, leadID, at)
	if err != nil {
		return false, fmt.Errorf("mark sla breached: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
