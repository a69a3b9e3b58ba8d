package planner

import (
	"context"
	"testing"

	"leadpulse_backend/internal/autopilot/repository"
)

func TestRulesPlannerMatchesKeywordsCaseInsensitively(t *testing.T) {
	p := NewRulesPlanner()

	res, err := p.Plan(context.Background(), Input{
		Question: repository.Question{
			Key:      "q1",
			Slot:     "budget",
			Keywords: []string{"euro", "budget"},
		},
		Text: "My BUDGET is around 5000",
	})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if !res.Matched {
		t.Fatal("expected keyword match")
	}
	if res.SlotValue != "My BUDGET is around 5000" {
		t.Fatalf("unexpected slot value %q", res.SlotValue)
	}
	if res.Source != SourceRules {
		t.Fatalf("expected rules source, got %q", res.Source)
	}
}

func TestRulesPlannerStoresUnmatchedReplyAsIs(t *testing.T) {
	p := NewRulesPlanner()

	res, err := p.Plan(context.Background(), Input{
		Question: repository.Question{Key: "q1", Slot: "budget", Keywords: []string{"euro"}},
		Text:     "call me tomorrow",
	})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if res.Matched {
		t.Fatal("expected no keyword match")
	}
	if res.SlotValue != "call me tomorrow" {
		t.Fatalf("unexpected slot value %q", res.SlotValue)
	}
}

func TestRulesPlannerStripsMarkupFromReply(t *testing.T) {
	p := NewRulesPlanner()

	res, err := p.Plan(context.Background(), Input{
		Question: repository.Question{Key: "q2", Slot: "timeline"},
		Text:     "<b>next month</b>",
	})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if res.SlotValue != "next month" {
		t.Fatalf("expected markup stripped, got %q", res.SlotValue)
	}
}
