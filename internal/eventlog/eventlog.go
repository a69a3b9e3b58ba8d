// Package eventlog provides the append-only audit trail. Every state
// transition in the system pairs with exactly one entry of a canonical type;
// readers get per-lead ordering (timestamp, then insertion order) and nothing
// more.
package eventlog

import (
	"context"
	"time"

	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
)

// Canonical event types. Emitters must use these constants; ad-hoc strings in
// the log break downstream reporting.
const (
	TypeLeadReceived          = "lead_received"
	TypeSLAStarted            = "sla_started"
	TypeSLAStopped            = "sla_stopped"
	TypeSLABreached           = "sla_breached"
	TypeAutopilotInbound      = "autopilot_inbound"
	TypeAutopilotAIPlanned    = "autopilot_ai_planned"
	TypeAutopilotHandover     = "autopilot_handover"
	TypeScenarioSwitched      = "autopilot_scenario_switched"
	TypeMessageBlocked        = "message_blocked"
	TypeMessageQueued         = "message_queued"
	TypeMessageSent           = "message_sent"
	TypeMessageFailed         = "message_failed"
	TypeAutoDispatchAttempted = "auto_dispatch_attempted"
	TypeHandoverNotified      = "handover_notified"
	TypeHandoverNotifyBlocked = "handover_notification_blocked"
	TypeHandoverNotifyFailed  = "handover_notification_failed"
	TypeInboundUnmatched      = "whatsapp_inbound_unmatched"
)

// Entry is one audit trail row.
type Entry struct {
	ID          int64          `json:"id"`
	WorkspaceID uuid.UUID      `json:"workspaceId"`
	LeadID      *uuid.UUID     `json:"leadId,omitempty"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Log is the audit trail contract. WithQuerier rebinds the log to a
// transaction so entries commit atomically with the transition they record.
type Log interface {
	Append(ctx context.Context, workspaceID uuid.UUID, leadID *uuid.UUID, eventType string, payload map[string]any) error
	ListByLead(ctx context.Context, workspaceID, leadID uuid.UUID) ([]Entry, error)
	WithQuerier(q db.Querier) Log
}
