package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"leadpulse_backend/internal/autopilot/planner"
	"leadpulse_backend/internal/autopilot/repository"
	domainevents "leadpulse_backend/internal/events"
	"leadpulse_backend/internal/eventlog"
	leadsrepo "leadpulse_backend/internal/leads/repository"
	outboundrepo "leadpulse_backend/internal/outbound/repository"
	outboundsvc "leadpulse_backend/internal/outbound/service"
	proofrepo "leadpulse_backend/internal/proof/repository"
	slaservice "leadpulse_backend/internal/sla/service"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/events"
	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/phone"
	"leadpulse_backend/platform/sanitize"

	"github.com/google/uuid"
)

// HandoverNode is the terminal node a run parks on after its last question.
const HandoverNode = "handover"

// ReplyOutcome reports what one inbound reply changed. The transactional part
// of the work records it; FinishReply performs the side effects that must
// wait for commit.
type ReplyOutcome struct {
	// Run is the state after processing.
	Run        repository.Run
	Advanced   bool
	HandedOver bool
	// QueuedMessageID is set when the next question was queued.
	QueuedMessageID *uuid.UUID
	// MessageBlocked is set when the run advanced but delivery was withheld
	// for want of a usable phone.
	MessageBlocked bool

	handover *domainevents.AutopilotHandedOver
}

type Service struct {
	tx       db.TxRunner
	repo     repository.Repository
	leads    leadsrepo.Repository
	proofs   proofrepo.Repository
	sla      *slaservice.Service
	audit    eventlog.Log
	outbound *outboundsvc.Service
	rules    planner.Planner
	ai       planner.Planner
	bus      events.Bus
	log      *logger.Logger
}

func NewService(
	tx db.TxRunner,
	repo repository.Repository,
	leads leadsrepo.Repository,
	proofs proofrepo.Repository,
	sla *slaservice.Service,
	audit eventlog.Log,
	outbound *outboundsvc.Service,
	rules planner.Planner,
	ai planner.Planner,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		leads:    leads,
		proofs:   proofs,
		sla:      sla,
		audit:    audit,
		outbound: outbound,
		rules:    rules,
		ai:       ai,
		bus:      bus,
		log:      log,
	}
}

// Bootstrap creates the run for a fresh lead on the workspace default
// scenario. Runs inside the ingestion transaction.
func (s *Service) Bootstrap(ctx context.Context, q db.Querier, leadID, workspaceID uuid.UUID) (repository.Run, error) {
	repo := s.repo.WithQuerier(q)

	scenario, err := repo.EnsureDefaultScenario(ctx, workspaceID)
	if err != nil {
		return repository.Run{}, err
	}

	run, err := repo.CreateRun(ctx, leadID, workspaceID, scenario.ID)
	if err != nil {
		return repository.Run{}, err
	}
	return run, nil
}

func (s *Service) plannerFor(scenario repository.Scenario) planner.Planner {
	if scenario.Mode == repository.ModeAI && s.ai != nil {
		return s.ai
	}
	return s.rules
}

// ProcessReplyTx advances the lead's run by one question inside the caller's
// transaction. Callers must already have deduplicated the inbound message;
// the conditional run update is only a second line of defense against
// concurrent writers.
func (s *Service) ProcessReplyTx(ctx context.Context, q db.Querier, leadID uuid.UUID, text string) (ReplyOutcome, error) {
	repo := s.repo.WithQuerier(q)
	audit := s.audit.WithQuerier(q)

	run, err := repo.GetRunByLead(ctx, leadID)
	if err != nil {
		return ReplyOutcome{}, err
	}

	scenario, err := repo.GetScenario(ctx, run.WorkspaceID, run.ScenarioID)
	if err != nil {
		return ReplyOutcome{}, err
	}

	if err := audit.Append(ctx, run.WorkspaceID, &leadID, eventlog.TypeAutopilotInbound, map[string]any{
		"runId":         run.ID.String(),
		"questionIndex": run.QuestionIndex,
		"mode":          scenario.Mode,
		"scenarioId":    scenario.ID.String(),
		"text":          sanitize.Text(text),
	}); err != nil {
		return ReplyOutcome{}, fmt.Errorf("log inbound: %w", err)
	}

	if run.Status != repository.RunActive {
		return ReplyOutcome{Run: run}, nil
	}

	limit := scenario.MaxQuestions
	if len(scenario.Questions) < limit {
		limit = len(scenario.Questions)
	}
	if run.QuestionIndex >= limit {
		// Run should already be handed over; treat as inert.
		return ReplyOutcome{Run: run}, nil
	}

	question := scenario.Questions[run.QuestionIndex]
	plan, err := s.plannerFor(scenario).Plan(ctx, planner.Input{
		Scenario: scenario,
		Question: question,
		Answers:  run.Answers,
		Text:     text,
	})
	if err != nil {
		return ReplyOutcome{}, fmt.Errorf("plan reply: %w", err)
	}

	if plan.Source == planner.SourceAI {
		if err := audit.Append(ctx, run.WorkspaceID, &leadID, eventlog.TypeAutopilotAIPlanned, map[string]any{
			"runId":   run.ID.String(),
			"slot":    question.Slot,
			"matched": plan.Matched,
		}); err != nil {
			return ReplyOutcome{}, fmt.Errorf("log ai plan: %w", err)
		}
	}

	answers := make(map[string]string, len(run.Answers)+1)
	for k, v := range run.Answers {
		answers[k] = v
	}
	answers[question.Slot] = plan.SlotValue

	nextIndex := run.QuestionIndex + 1
	upd := repository.RunUpdate{
		QuestionIndex: nextIndex,
		Answers:       answers,
		Status:        repository.RunActive,
	}

	handingOver := nextIndex >= limit
	if handingOver {
		upd.Node = HandoverNode
		upd.Status = repository.RunHandedOver
	} else {
		upd.Node = scenario.Questions[nextIndex].Key
	}

	won, err := repo.AdvanceRun(ctx, run.ID, run.QuestionIndex, upd)
	if err != nil {
		return ReplyOutcome{}, err
	}
	if !won {
		return ReplyOutcome{Run: run}, nil
	}

	advanced := run
	advanced.Node = upd.Node
	advanced.QuestionIndex = upd.QuestionIndex
	advanced.Answers = answers
	advanced.Status = upd.Status
	outcome := ReplyOutcome{Run: advanced, Advanced: true}

	if handingOver {
		outcome.HandedOver = true
		if err := audit.Append(ctx, run.WorkspaceID, &leadID, eventlog.TypeAutopilotHandover, map[string]any{
			"runId":      run.ID.String(),
			"scenarioId": scenario.ID.String(),
			"reason":     "questions_exhausted",
		}); err != nil {
			return ReplyOutcome{}, fmt.Errorf("log handover: %w", err)
		}
		outcome.handover = &domainevents.AutopilotHandedOver{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         leadID,
			WorkspaceID:    run.WorkspaceID,
			ScenarioID:     scenario.ID,
			HandoverUserID: scenario.HandoverUserID,
			Reason:         "questions_exhausted",
		}
		return outcome, nil
	}

	msgID, err := s.queueQuestion(ctx, q, leadID, run.WorkspaceID, scenario.ID, scenario.Questions[nextIndex])
	if err != nil {
		return ReplyOutcome{}, err
	}
	outcome.QueuedMessageID = msgID
	outcome.MessageBlocked = msgID == nil
	return outcome, nil
}

// queueQuestion queues the prompt for the lead, or records why it could not
// be sent. A nil message id with nil error means the send was blocked.
func (s *Service) queueQuestion(ctx context.Context, q db.Querier, leadID, workspaceID, scenarioID uuid.UUID, question repository.Question) (*uuid.UUID, error) {
	lead, err := s.leads.WithQuerier(q).GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if !phone.IsUsable(lead.Phone) {
		if err := s.audit.WithQuerier(q).Append(ctx, workspaceID, &leadID, eventlog.TypeMessageBlocked, map[string]any{
			"reason":     "missing_phone",
			"channel":    "whatsapp",
			"scenarioId": scenarioID.String(),
			"question":   question.Key,
		}); err != nil {
			return nil, fmt.Errorf("log blocked message: %w", err)
		}
		return nil, nil
	}

	msg, err := s.outbound.WithQuerier(q).Queue(ctx, outboundrepo.CreateParams{
		WorkspaceID: workspaceID,
		LeadID:      leadID,
		ToPhone:     lead.Phone,
		Body:        question.Prompt,
	})
	if err != nil {
		return nil, err
	}
	return &msg.ID, nil
}

// FinishReply runs the post-commit side effects of a reply: delivery of the
// queued question and the handover event.
func (s *Service) FinishReply(ctx context.Context, outcome ReplyOutcome) {
	if outcome.QueuedMessageID != nil {
		if _, err := s.outbound.DispatchOne(ctx, *outcome.QueuedMessageID); err != nil {
			s.log.Error("dispatch next question failed", "messageId", *outcome.QueuedMessageID, "error", err)
		}
	}
	if outcome.handover != nil {
		s.bus.Publish(ctx, *outcome.handover)
	}
}

// SendCurrentQuestion queues and dispatches the question the run is parked
// on. Used after ingestion and after a scenario switch.
func (s *Service) SendCurrentQuestion(ctx context.Context, leadID uuid.UUID) error {
	run, err := s.repo.GetRunByLead(ctx, leadID)
	if err != nil {
		return err
	}
	if run.Status != repository.RunActive {
		return apperr.Conflict("autopilot run is not active")
	}

	scenario, err := s.repo.GetScenario(ctx, run.WorkspaceID, run.ScenarioID)
	if err != nil {
		return err
	}
	if run.QuestionIndex >= len(scenario.Questions) {
		return apperr.Conflict("run has no pending question")
	}

	var msgID *uuid.UUID
	err = s.tx(ctx, func(q db.Querier) error {
		msgID, err = s.queueQuestion(ctx, q, leadID, run.WorkspaceID, scenario.ID, scenario.Questions[run.QuestionIndex])
		return err
	})
	if err != nil {
		return err
	}
	if msgID == nil {
		return nil
	}

	if _, err := s.outbound.DispatchOne(ctx, *msgID); err != nil {
		s.log.Error("dispatch question failed", "messageId", *msgID, "error", err)
	}
	return nil
}

// GetRun returns the run with its scenario for the lead.
func (s *Service) GetRun(ctx context.Context, leadID uuid.UUID) (repository.Run, repository.Scenario, error) {
	run, err := s.repo.GetRunByLead(ctx, leadID)
	if err != nil {
		return repository.Run{}, repository.Scenario{}, err
	}
	scenario, err := s.repo.GetScenario(ctx, run.WorkspaceID, run.ScenarioID)
	if err != nil {
		return repository.Run{}, repository.Scenario{}, err
	}
	return run, scenario, nil
}

// SwitchScenario rebinds the lead's run to another scenario, wiping progress,
// then re-sends the first question.
func (s *Service) SwitchScenario(ctx context.Context, leadID, scenarioID uuid.UUID) (repository.Run, error) {
	current, err := s.repo.GetRunByLead(ctx, leadID)
	if err != nil {
		return repository.Run{}, err
	}

	target, err := s.repo.GetScenario(ctx, current.WorkspaceID, scenarioID)
	if err != nil {
		return repository.Run{}, err
	}

	var run repository.Run
	err = s.tx(ctx, func(q db.Querier) error {
		run, err = s.repo.WithQuerier(q).ResetRun(ctx, leadID, scenarioID)
		if err != nil {
			return err
		}
		return s.audit.WithQuerier(q).Append(ctx, run.WorkspaceID, &leadID, eventlog.TypeScenarioSwitched, map[string]any{
			"runId": run.ID.String(),
			"from":  current.ScenarioID.String(),
			"to":    scenarioID.String(),
			"mode":  target.Mode,
		})
	})
	if err != nil {
		return repository.Run{}, err
	}

	if err := s.SendCurrentQuestion(ctx, leadID); err != nil {
		s.log.Error("resend first question failed", "leadId", leadID, "error", err)
	}
	return run, nil
}

func validateScenarioParams(params repository.ScenarioParams) error {
	if params.Mode != repository.ModeRules && params.Mode != repository.ModeAI {
		return apperr.Validation("mode must be RULES or AI")
	}
	if len(params.Questions) == 0 {
		return apperr.Validation("scenario needs at least one question")
	}
	if params.MaxQuestions < 1 {
		return apperr.Validation("maxQuestions must be at least 1")
	}
	seen := make(map[string]bool, len(params.Questions))
	for _, question := range params.Questions {
		if question.Key == "" || question.Prompt == "" || question.Slot == "" {
			return apperr.Validation("each question needs key, prompt and slot")
		}
		if seen[question.Key] {
			return apperr.Validation("question keys must be unique")
		}
		seen[question.Key] = true
	}
	return nil
}

func (s *Service) CreateScenario(ctx context.Context, params repository.ScenarioParams) (repository.Scenario, error) {
	if err := validateScenarioParams(params); err != nil {
		return repository.Scenario{}, err
	}
	return s.repo.CreateScenario(ctx, params)
}

// UpdateScenario saves the edit and, when it changed the questions or the
// planning mode, rewinds the runs on this scenario to the first node so no
// run continues against a script that no longer exists.
func (s *Service) UpdateScenario(ctx context.Context, workspaceID, id uuid.UUID, params repository.ScenarioParams) (repository.Scenario, error) {
	if err := validateScenarioParams(params); err != nil {
		return repository.Scenario{}, err
	}

	before, err := s.repo.GetScenario(ctx, workspaceID, id)
	if err != nil {
		return repository.Scenario{}, err
	}

	var updated repository.Scenario
	err = s.tx(ctx, func(q db.Querier) error {
		repo := s.repo.WithQuerier(q)
		updated, err = repo.UpdateScenario(ctx, workspaceID, id, params)
		if err != nil {
			return err
		}
		if !scenarioBehaviorChanged(before, updated) {
			return nil
		}
		switched, err := repo.ResetScenarioRuns(ctx, workspaceID, id)
		if err != nil {
			return err
		}
		return s.logSwitchedRuns(ctx, q, workspaceID, switched, id, updated.Mode)
	})
	if err != nil {
		return repository.Scenario{}, err
	}
	return updated, nil
}

// scenarioBehaviorChanged reports whether the edit touched the parts of a
// scenario that drive the run state machine. Renames and prompt-neutral
// metadata never reset anyone.
func scenarioBehaviorChanged(before, after repository.Scenario) bool {
	if before.Mode != after.Mode || before.MaxQuestions != after.MaxQuestions {
		return true
	}
	prev, _ := json.Marshal(before.Questions)
	next, _ := json.Marshal(after.Questions)
	return !bytes.Equal(prev, next)
}

func (s *Service) logSwitchedRuns(ctx context.Context, q db.Querier, workspaceID uuid.UUID, switched []repository.RunSwitch, scenarioID uuid.UUID, mode string) error {
	audit := s.audit.WithQuerier(q)
	for _, sw := range switched {
		leadID := sw.Run.LeadID
		if err := audit.Append(ctx, workspaceID, &leadID, eventlog.TypeScenarioSwitched, map[string]any{
			"runId": sw.Run.ID.String(),
			"from":  sw.FromScenarioID.String(),
			"to":    scenarioID.String(),
			"mode":  mode,
		}); err != nil {
			return fmt.Errorf("log scenario switch: %w", err)
		}
	}
	return nil
}

func (s *Service) GetScenario(ctx context.Context, workspaceID, id uuid.UUID) (repository.Scenario, error) {
	return s.repo.GetScenario(ctx, workspaceID, id)
}

func (s *Service) ListScenarios(ctx context.Context, workspaceID uuid.UUID) ([]repository.Scenario, error) {
	return s.repo.ListScenarios(ctx, workspaceID)
}

func (s *Service) DeleteScenario(ctx context.Context, workspaceID, id uuid.UUID) error {
	return s.repo.DeleteScenario(ctx, workspaceID, id)
}

// SetDefaultScenario changes the workspace default and rewinds every run in
// the workspace onto the new default. Leads mid-conversation restart from the
// first question rather than continuing a script the workspace abandoned.
func (s *Service) SetDefaultScenario(ctx context.Context, workspaceID, id uuid.UUID) error {
	target, err := s.repo.GetScenario(ctx, workspaceID, id)
	if err != nil {
		return err
	}

	return s.tx(ctx, func(q db.Querier) error {
		repo := s.repo.WithQuerier(q)
		if err := repo.SetDefaultScenario(ctx, workspaceID, id); err != nil {
			return err
		}
		switched, err := repo.ResetWorkspaceRuns(ctx, workspaceID, id)
		if err != nil {
			return err
		}
		return s.logSwitchedRuns(ctx, q, workspaceID, switched, id, target.Mode)
	})
}
