package repository

import (
	"context"
	"time"

	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
)

// SLAState is the per-lead response deadline window. stopped_at and
// breached_at are each set at most once, enforced by conditional updates.
type SLAState struct {
	ID          uuid.UUID  `json:"id"`
	LeadID      uuid.UUID  `json:"leadId"`
	WorkspaceID uuid.UUID  `json:"workspaceId"`
	StartedAt   time.Time  `json:"startedAt"`
	DeadlineAt  time.Time  `json:"deadlineAt"`
	StoppedAt   *time.Time `json:"stoppedAt,omitempty"`
	StopReason  *string    `json:"stopReason,omitempty"`
	BreachedAt  *time.Time `json:"breachedAt,omitempty"`
}

// Repository is the SLA state store. Stop and MarkBreached are the
// at-most-one-writer guards: both are conditional updates whose boolean
// result reports whether this caller won the transition.
type Repository interface {
	Create(ctx context.Context, leadID uuid.UUID, startedAt, deadlineAt time.Time) (SLAState, error)
	GetByLead(ctx context.Context, leadID uuid.UUID) (SLAState, error)
	// Stop sets stopped_at/stop_reason iff the clock is still running.
	// Returns false when another writer stopped it first.
	Stop(ctx context.Context, leadID uuid.UUID, reason string, at time.Time) (bool, error)
	// ListOverdue returns running clocks whose deadline has passed.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]SLAState, error)
	// MarkBreached sets breached_at iff the clock is neither breached nor
	// stopped. Returns false when this caller lost the race.
	MarkBreached(ctx context.Context, leadID uuid.UUID, at time.Time) (bool, error)
	WithQuerier(q db.Querier) Repository
}
