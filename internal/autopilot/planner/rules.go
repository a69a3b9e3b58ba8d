package planner

import (
	"context"
	"strings"

	"leadpulse_backend/platform/sanitize"
)

// RulesPlanner fills the slot with the sanitized reply text. Keywords only
// grade whether the reply addressed the question.
type RulesPlanner struct{}

func NewRulesPlanner() *RulesPlanner {
	return &RulesPlanner{}
}

func (p *RulesPlanner) Plan(ctx context.Context, in Input) (Result, error) {
	text := strings.TrimSpace(sanitize.Text(in.Text))

	matched := false
	lower := strings.ToLower(text)
	for _, keyword := range in.Question.Keywords {
		if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
			matched = true
			break
		}
	}

	return Result{SlotValue: text, Matched: matched, Source: SourceRules}, nil
}
