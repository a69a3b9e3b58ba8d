package repository

import (
	"context"
	"time"

	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunActive     = "ACTIVE"
	RunHandedOver = "HANDED_OVER"
	RunStopped    = "STOPPED"
)

// Scenario planner modes.
const (
	ModeRules = "RULES"
	ModeAI    = "AI"
)

// Question is one slot-filling step of a scenario. Keywords feed the rule
// planner; Slot names the answer field the reply fills.
type Question struct {
	Key      string   `json:"key"`
	Prompt   string   `json:"prompt"`
	Slot     string   `json:"slot"`
	Keywords []string `json:"keywords"`
}

// Scenario is a workspace-scoped conversation script. At most one scenario
// per workspace is the default used to bootstrap new runs.
type Scenario struct {
	ID             uuid.UUID  `json:"id"`
	WorkspaceID    uuid.UUID  `json:"workspaceId"`
	Name           string     `json:"name"`
	Mode           string     `json:"mode"`
	IsDefault      bool       `json:"isDefault"`
	MaxQuestions   int        `json:"maxQuestions"`
	HandoverUserID *uuid.UUID `json:"handoverUserId"`
	PlannerPrompt  string     `json:"plannerPrompt"`
	Questions      []Question `json:"questions"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Run is the per-lead conversation state machine.
type Run struct {
	ID            uuid.UUID         `json:"id"`
	LeadID        uuid.UUID         `json:"leadId"`
	WorkspaceID   uuid.UUID         `json:"workspaceId"`
	ScenarioID    uuid.UUID         `json:"scenarioId"`
	Status        string            `json:"status"`
	Node          string            `json:"node"`
	QuestionIndex int               `json:"questionIndex"`
	Answers       map[string]string `json:"answers"`
	LastInboundAt *time.Time        `json:"lastInboundAt"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// RunUpdate is the state written when a reply advances a run.
type RunUpdate struct {
	Node          string
	QuestionIndex int
	Answers       map[string]string
	Status        string
}

// RunSwitch is one run rebound during an administrative reset, paired with
// the scenario it left so the audit trail can record the transition.
type RunSwitch struct {
	Run            Run
	FromScenarioID uuid.UUID
}

type ScenarioParams struct {
	WorkspaceID    uuid.UUID
	Name           string
	Mode           string
	MaxQuestions   int
	HandoverUserID *uuid.UUID
	PlannerPrompt  string
	Questions      []Question
}

// Repository stores scenarios and runs.
type Repository interface {
	CreateScenario(ctx context.Context, params ScenarioParams) (Scenario, error)
	GetScenario(ctx context.Context, workspaceID, id uuid.UUID) (Scenario, error)
	ListScenarios(ctx context.Context, workspaceID uuid.UUID) ([]Scenario, error)
	UpdateScenario(ctx context.Context, workspaceID, id uuid.UUID, params ScenarioParams) (Scenario, error)
	DeleteScenario(ctx context.Context, workspaceID, id uuid.UUID) error
	// SetDefaultScenario unsets the previous default and sets the new one.
	SetDefaultScenario(ctx context.Context, workspaceID, id uuid.UUID) error
	// EnsureDefaultScenario returns the workspace default, creating the
	// built-in script when the workspace has none.
	EnsureDefaultScenario(ctx context.Context, workspaceID uuid.UUID) (Scenario, error)

	CreateRun(ctx context.Context, leadID, workspaceID, scenarioID uuid.UUID) (Run, error)
	GetRunByLead(ctx context.Context, leadID uuid.UUID) (Run, error)
	// AdvanceRun applies upd only when the run is still at expectedIndex and
	// active. Returns false when another writer advanced the run first.
	AdvanceRun(ctx context.Context, runID uuid.UUID, expectedIndex int, upd RunUpdate) (bool, error)
	// ResetRun rebinds the lead's run to a scenario at the first node, wiping
	// collected answers.
	ResetRun(ctx context.Context, leadID, scenarioID uuid.UUID) (Run, error)
	// ResetWorkspaceRuns rebinds every run in the workspace to scenarioID at
	// the first node. Used when the workspace default changes.
	ResetWorkspaceRuns(ctx context.Context, workspaceID, scenarioID uuid.UUID) ([]RunSwitch, error)
	// ResetScenarioRuns resets the runs already bound to scenarioID. Used when
	// an edit changes the scenario's questions or planning mode.
	ResetScenarioRuns(ctx context.Context, workspaceID, scenarioID uuid.UUID) ([]RunSwitch, error)
	WithQuerier(q db.Querier) Repository
}
