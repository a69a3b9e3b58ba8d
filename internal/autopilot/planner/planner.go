// Package planner decides how an inbound reply fills the current question's
// slot. The rule planner matches keywords; the AI planner asks Gemini and
// falls back to the rules when the model is unavailable.
package planner

import (
	"context"

	"leadpulse_backend/internal/autopilot/repository"
)

// Plan sources.
const (
	SourceRules = "rules"
	SourceAI    = "ai"
)

// Input carries everything a planner may look at for one reply.
type Input struct {
	Scenario repository.Scenario
	Question repository.Question
	Answers  map[string]string
	Text     string
}

// Result is the planned slot fill for the reply.
type Result struct {
	// SlotValue is stored under the question's slot name.
	SlotValue string
	// Matched reports whether the reply looked like an answer to the
	// question rather than free text.
	Matched bool
	// Source names the planner that produced the value.
	Source string
}

type Planner interface {
	Plan(ctx context.Context, in Input) (Result, error)
}
