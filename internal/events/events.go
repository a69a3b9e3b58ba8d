// Package events defines the domain events published on the in-process bus.
package events

import (
	"leadpulse_backend/platform/events"

	"github.com/google/uuid"
)

const (
	AutopilotHandedOverEvent = "autopilot.handed_over"
	LeadIngestedEvent        = "lead.ingested"
)

// AutopilotHandedOver fires after a run reaches handover and the transaction
// committed. Subscribers must not assume the lead is still in this state.
type AutopilotHandedOver struct {
	events.BaseEvent
	LeadID         uuid.UUID
	WorkspaceID    uuid.UUID
	ScenarioID     uuid.UUID
	HandoverUserID *uuid.UUID
	Reason         string
}

func (e AutopilotHandedOver) EventName() string { return AutopilotHandedOverEvent }

// LeadIngested fires after a new lead was committed.
type LeadIngested struct {
	events.BaseEvent
	LeadID      uuid.UUID
	WorkspaceID uuid.UUID
	Source      string
}

func (e LeadIngested) EventName() string { return LeadIngestedEvent }
