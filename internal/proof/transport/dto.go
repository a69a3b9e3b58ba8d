// Package transport contains the webhook payload shapes for the proof module.
package transport

import "time"

// StatusWebhookRequest is a delivery status callback. Provider is optional;
// it defaults to the active messaging provider.
type StatusWebhookRequest struct {
	Provider  string     `json:"provider" validate:"omitempty,max=32"`
	MessageID string     `json:"messageId" validate:"required,max=128"`
	Status    string     `json:"status" validate:"required,max=32"`
	Timestamp *time.Time `json:"timestamp"`
}

// InboundWebhookRequest is an inbound WhatsApp message callback.
type InboundWebhookRequest struct {
	Provider  string     `json:"provider" validate:"omitempty,max=32"`
	MessageID string     `json:"messageId" validate:"required,max=128"`
	From      string     `json:"from" validate:"required,max=32"`
	Text      string     `json:"text" validate:"omitempty,max=4000"`
	Timestamp *time.Time `json:"timestamp"`
}
