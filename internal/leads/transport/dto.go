// Package transport contains the HTTP request shapes for the leads module.
package transport

import "github.com/google/uuid"

type IngestLeadRequest struct {
	WorkspaceID   uuid.UUID `json:"workspaceId" validate:"required"`
	Name          string    `json:"name" validate:"omitempty,max=200"`
	Phone         string    `json:"phone" validate:"omitempty,max=32"`
	Email         string    `json:"email" validate:"omitempty,email,max=254"`
	Source        string    `json:"source" validate:"omitempty,max=64"`
	TargetMinutes int       `json:"targetMinutes" validate:"omitempty,min=1,max=10080"`
}
