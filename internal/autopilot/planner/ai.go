package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"leadpulse_backend/platform/logger"

	"google.golang.org/genai"
)

// AIPlanner extracts the slot value with Gemini. Any model failure degrades
// to the rule planner so a provider outage never stalls a run.
type AIPlanner struct {
	client   *genai.Client
	model    string
	fallback Planner
	log      *logger.Logger
}

type aiPlan struct {
	SlotValue string `json:"slotValue"`
	Matched   bool   `json:"matched"`
}

func NewAIPlanner(ctx context.Context, apiKey, model string, fallback Planner, log *logger.Logger) (*AIPlanner, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &AIPlanner{client: client, model: model, fallback: fallback, log: log}, nil
}

func (p *AIPlanner) Plan(ctx context.Context, in Input) (Result, error) {
	prompt := p.buildPrompt(in)
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		p.log.Error("ai planner degraded to rules", "error", err)
		return p.fallback.Plan(ctx, in)
	}

	text := collectText(resp)
	var plan aiPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil || strings.TrimSpace(plan.SlotValue) == "" {
		p.log.Error("ai planner returned unusable plan", "raw", text)
		return p.fallback.Plan(ctx, in)
	}

	return Result{SlotValue: strings.TrimSpace(plan.SlotValue), Matched: plan.Matched, Source: SourceAI}, nil
}

func (p *AIPlanner) buildPrompt(in Input) string {
	var sb strings.Builder
	sb.WriteString("You extract a structured answer from a WhatsApp reply.\n")
	if in.Scenario.PlannerPrompt != "" {
		sb.WriteString(in.Scenario.PlannerPrompt)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Question asked: %q\n", in.Question.Prompt)
	fmt.Fprintf(&sb, "Slot to fill: %q\n", in.Question.Slot)
	if len(in.Answers) > 0 {
		collected, _ := json.Marshal(in.Answers)
		fmt.Fprintf(&sb, "Answers collected so far: %s\n", collected)
	}
	fmt.Fprintf(&sb, "Reply: %q\n", in.Text)
	sb.WriteString(`Respond with JSON only: {"slotValue": "<concise extracted value>", "matched": <true when the reply answers the question>}`)
	return sb.String()
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}
