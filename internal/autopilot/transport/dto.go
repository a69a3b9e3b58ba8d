// Package transport contains the HTTP request and response shapes for the
// autopilot module.
package transport

import (
	"leadpulse_backend/internal/autopilot/repository"

	"github.com/google/uuid"
)

type QuestionDTO struct {
	Key      string   `json:"key" validate:"required,max=64"`
	Prompt   string   `json:"prompt" validate:"required,max=1000"`
	Slot     string   `json:"slot" validate:"required,max=64"`
	Keywords []string `json:"keywords" validate:"omitempty,dive,max=64"`
}

type ScenarioRequest struct {
	WorkspaceID    uuid.UUID     `json:"workspaceId" validate:"required"`
	Name           string        `json:"name" validate:"required,max=200"`
	Mode           string        `json:"mode" validate:"omitempty,oneof=RULES AI"`
	MaxQuestions   int           `json:"maxQuestions" validate:"omitempty,min=1,max=20"`
	HandoverUserID *uuid.UUID    `json:"handoverUserId"`
	PlannerPrompt  string        `json:"plannerPrompt" validate:"omitempty,max=4000"`
	Questions      []QuestionDTO `json:"questions" validate:"required,min=1,dive"`
}

// ToParams applies defaults and converts to the repository shape.
func (r ScenarioRequest) ToParams() repository.ScenarioParams {
	mode := r.Mode
	if mode == "" {
		mode = repository.ModeRules
	}
	maxQuestions := r.MaxQuestions
	if maxQuestions == 0 {
		maxQuestions = len(r.Questions)
	}

	questions := make([]repository.Question, 0, len(r.Questions))
	for _, q := range r.Questions {
		questions = append(questions, repository.Question{
			Key:      q.Key,
			Prompt:   q.Prompt,
			Slot:     q.Slot,
			Keywords: q.Keywords,
		})
	}

	return repository.ScenarioParams{
		WorkspaceID:    r.WorkspaceID,
		Name:           r.Name,
		Mode:           mode,
		MaxQuestions:   maxQuestions,
		HandoverUserID: r.HandoverUserID,
		PlannerPrompt:  r.PlannerPrompt,
		Questions:      questions,
	}
}

type ReplyRequest struct {
	LeadID uuid.UUID `json:"leadId" validate:"required"`
	Text   string    `json:"text" validate:"required,max=4000"`
}

type SwitchScenarioRequest struct {
	ScenarioID uuid.UUID `json:"scenarioId" validate:"required"`
}
