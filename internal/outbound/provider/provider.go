// Package provider contains the WhatsApp delivery adapters behind the
// Sender interface.
package provider

import (
	"context"
	"time"
)

// SendResult identifies a delivered message at the provider.
type SendResult struct {
	Provider          string
	ProviderMessageID string
	SentAt            time.Time
}

// Sender delivers a single message. Implementations must honor ctx
// cancellation and never include credentials in returned errors.
type Sender interface {
	Name() string
	Send(ctx context.Context, toPhone, body string) (SendResult, error)
}
