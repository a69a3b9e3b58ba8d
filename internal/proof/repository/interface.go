package repository

import (
	"context"
	"time"

	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
)

// Proof event types. SENT is recorded for bookkeeping only; DELIVERED, READ,
// REPLIED and INBOUND count as contact proof.
const (
	TypeSent      = "SENT"
	TypeDelivered = "DELIVERED"
	TypeRead      = "READ"
	TypeReplied   = "REPLIED"
	TypeInbound   = "INBOUND"
)

// ChannelWhatsApp is the only proof channel currently recorded.
const ChannelWhatsApp = "WHATSAPP"

// ProofEvent is an immutable delivery or contact fact reported by a provider.
type ProofEvent struct {
	ID                uuid.UUID `json:"id"`
	LeadID            uuid.UUID `json:"leadId"`
	Channel           string    `json:"channel"`
	Type              string    `json:"type"`
	Provider          string    `json:"provider"`
	ProviderMessageID string    `json:"providerMessageId"`
	OccurredAt        time.Time `json:"occurredAt"`
	CreatedAt         time.Time `json:"createdAt"`
}

type InsertParams struct {
	LeadID            uuid.UUID
	Channel           string
	Type              string
	Provider          string
	ProviderMessageID string
	OccurredAt        time.Time
}

// StopsClock reports whether the proof type counts as real contact.
func StopsClock(proofType string) bool {
	switch proofType {
	case TypeDelivered, TypeRead, TypeReplied, TypeInbound:
		return true
	default:
		return false
	}
}

type Repository interface {
	// Insert stores the proof. A redelivery of the same (lead, message, type,
	// channel) returns the original row with fresh=false and must not trigger
	// any downstream transition again.
	Insert(ctx context.Context, params InsertParams) (event ProofEvent, fresh bool, err error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]ProofEvent, error)
	WithQuerier(q db.Querier) Repository
}
