package repository

import (
	"context"
	"time"

	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
)

// Message statuses. A message moves QUEUED -> SENT or QUEUED -> FAILED
// exactly once.
const (
	StatusQueued = "QUEUED"
	StatusSent   = "SENT"
	StatusFailed = "FAILED"
)

// ChannelWhatsApp is the only channel currently dispatched.
const ChannelWhatsApp = "WHATSAPP"

type Message struct {
	ID                uuid.UUID  `json:"id"`
	WorkspaceID       uuid.UUID  `json:"workspaceId"`
	LeadID            uuid.UUID  `json:"leadId"`
	Status            string     `json:"status"`
	Channel           string     `json:"channel"`
	ToPhone           string     `json:"toPhone"`
	Body              string     `json:"body"`
	Provider          *string    `json:"provider"`
	ProviderMessageID *string    `json:"providerMessageId"`
	FailReason        *string    `json:"failReason"`
	SentAt            *time.Time `json:"sentAt"`
	CreatedAt         time.Time  `json:"createdAt"`
}

type CreateParams struct {
	WorkspaceID uuid.UUID
	LeadID      uuid.UUID
	ToPhone     string
	Body        string
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (Message, error)
	// GetByProviderMessageID resolves a status callback to the message it
	// refers to.
	GetByProviderMessageID(ctx context.Context, provider, providerMessageID string) (Message, error)
	// MarkSent transitions QUEUED -> SENT. Returns false when the message
	// already left QUEUED, so racing dispatchers get exactly one winner.
	MarkSent(ctx context.Context, id uuid.UUID, provider, providerMessageID string, sentAt time.Time) (bool, error)
	// MarkFailed transitions QUEUED -> FAILED under the same guard.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ListQueued(ctx context.Context, limit int) ([]Message, error)
	WithQuerier(q db.Querier) Repository
}
