package repository

import (
	"context"
	"time"

	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
)

// Lead statuses. Closed statuses exclude the lead from inbound webhook
// matching.
const (
	StatusOpen       = "open"
	StatusQualified  = "qualified"
	StatusClosedWon  = "closed_won"
	StatusClosedLost = "closed_lost"
	StatusArchived   = "archived"
)

// ClosedStatuses is the set excluded from inbound phone matching.
var ClosedStatuses = []string{StatusClosedWon, StatusClosedLost, StatusArchived}

// Lead is a sales lead within a workspace. The reserved inbox lead
// (IsInbox) collects unmatched inbound traffic and never enters matching.
type Lead struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspaceId"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	IsInbox     bool      `json:"isInbox"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateParams contains parameters for creating a lead.
type CreateParams struct {
	WorkspaceID uuid.UUID
	Name        string
	Phone       string
	Email       string
	Source      string
}

// IdempotencyRecord is the stored snapshot of a completed ingestion request.
type IdempotencyRecord struct {
	StatusCode   int
	ResponseBody []byte
	CreatedAt    time.Time
}

// Repository is the lead store.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (Lead, error)
	// FindOpenByPhone resolves a lead by exact phone match, excluding closed
	// statuses and the inbox lead.
	FindOpenByPhone(ctx context.Context, workspaceID uuid.UUID, phone string) (Lead, error)
	// EnsureInboxLead lazily creates the per-workspace inbox singleton.
	EnsureInboxLead(ctx context.Context, workspaceID uuid.UUID) (Lead, error)
	EnsureWorkspace(ctx context.Context, workspaceID uuid.UUID, name string) error
	// Delete removes a lead, refusing while audit or proof history exists.
	Delete(ctx context.Context, workspaceID, id uuid.UUID) error
	WithQuerier(q db.Querier) Repository
}

// IdempotencyStore persists one response snapshot per (workspace, key).
type IdempotencyStore interface {
	Get(ctx context.Context, workspaceID uuid.UUID, key string) (IdempotencyRecord, bool, error)
	// Save inserts the snapshot; the unique constraint makes a concurrent
	// duplicate fail the whole transaction rather than double-ingest.
	Save(ctx context.Context, workspaceID uuid.UUID, key string, statusCode int, body []byte) error
	WithQuerier(q db.Querier) IdempotencyStore
}
