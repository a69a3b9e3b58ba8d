package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	autopilotsvc "leadpulse_backend/internal/autopilot/service"
	domainevents "leadpulse_backend/internal/events"
	"leadpulse_backend/internal/eventlog"
	"leadpulse_backend/internal/leads/repository"
	slaservice "leadpulse_backend/internal/sla/service"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/events"
	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/phone"
	"leadpulse_backend/platform/sanitize"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BreachScheduler schedules the exact-deadline breach check. The scheduler
// module plugs in after construction; without it the sweep still catches
// breaches.
type BreachScheduler interface {
	ScheduleBreachCheck(ctx context.Context, leadID uuid.UUID, runAt time.Time) error
}

// IngestParams is one lead submission.
type IngestParams struct {
	WorkspaceID    uuid.UUID
	Name           string
	Phone          string
	Email          string
	Source         string
	TargetMinutes  int
	IdempotencyKey string
}

// IngestResult carries the exact response body to return. On replay the body
// is the stored snapshot with only the idempotency flag flipped.
type IngestResult struct {
	StatusCode int
	Body       []byte
	Reused     bool
}

type ingestResponse struct {
	LeadID uuid.UUID `json:"leadId"`
	SLA    struct {
		StartedAt  time.Time `json:"startedAt"`
		DeadlineAt time.Time `json:"deadlineAt"`
	} `json:"sla"`
	Autopilot struct {
		RunID      uuid.UUID `json:"runId"`
		ScenarioID uuid.UUID `json:"scenarioId"`
		Node       string    `json:"node"`
	} `json:"autopilot"`
	Idempotency struct {
		Reused bool `json:"reused"`
	} `json:"idempotency"`
}

type Service struct {
	pool          *pgxpool.Pool
	repo          repository.Repository
	idem          repository.IdempotencyStore
	sla           *slaservice.Service
	autopilot     *autopilotsvc.Service
	audit         eventlog.Log
	bus           events.Bus
	scheduler     BreachScheduler
	log           *logger.Logger
	targetMinutes int
}

func NewService(
	pool *pgxpool.Pool,
	repo repository.Repository,
	idem repository.IdempotencyStore,
	sla *slaservice.Service,
	autopilot *autopilotsvc.Service,
	audit eventlog.Log,
	bus events.Bus,
	log *logger.Logger,
	targetMinutes int,
) *Service {
	return &Service{
		pool:          pool,
		repo:          repo,
		idem:          idem,
		sla:           sla,
		autopilot:     autopilot,
		audit:         audit,
		bus:           bus,
		log:           log,
		targetMinutes: targetMinutes,
	}
}

// SetBreachScheduler wires the exact-deadline check in. Optional.
func (s *Service) SetBreachScheduler(sched BreachScheduler) {
	s.scheduler = sched
}

// Ingest creates a lead, starts its first-contact clock and bootstraps the
// qualification run in one transaction, keyed by the Idempotency-Key header.
// A retry with the same key replays the stored response and changes nothing.
func (s *Service) Ingest(ctx context.Context, params IngestParams) (IngestResult, error) {
	stored, found, err := s.idem.Get(ctx, params.WorkspaceID, params.IdempotencyKey)
	if err != nil {
		return IngestResult{}, err
	}
	if found {
		body, err := markReused(stored.ResponseBody)
		if err != nil {
			return IngestResult{}, err
		}
		return IngestResult{StatusCode: http.StatusOK, Body: body, Reused: true}, nil
	}

	leadPhone := ""
	if phone.IsUsable(params.Phone) {
		leadPhone = phone.NormalizeE164(params.Phone)
	}

	targetMinutes := params.TargetMinutes
	if targetMinutes <= 0 {
		targetMinutes = s.targetMinutes
	}

	var (
		resp ingestResponse
		body []byte
	)
	err = db.InTx(ctx, s.pool, func(q db.Querier) error {
		repo := s.repo.WithQuerier(q)

		if err := repo.EnsureWorkspace(ctx, params.WorkspaceID, "Workspace"); err != nil {
			return err
		}

		lead, err := repo.Create(ctx, repository.CreateParams{
			WorkspaceID: params.WorkspaceID,
			Name:        sanitize.Text(params.Name),
			Phone:       leadPhone,
			Email:       sanitize.Text(params.Email),
			Source:      sanitize.Text(params.Source),
		})
		if err != nil {
			return err
		}

		state, err := s.sla.WithQuerier(q).StartClock(ctx, params.WorkspaceID, lead.ID, targetMinutes)
		if err != nil {
			return err
		}

		run, err := s.autopilot.Bootstrap(ctx, q, lead.ID, params.WorkspaceID)
		if err != nil {
			return err
		}

		if err := s.audit.WithQuerier(q).Append(ctx, params.WorkspaceID, &lead.ID, eventlog.TypeLeadReceived, map[string]any{
			"source":        lead.Source,
			"hasPhone":      leadPhone != "",
			"targetMinutes": targetMinutes,
		}); err != nil {
			return fmt.Errorf("log lead received: %w", err)
		}

		resp.LeadID = lead.ID
		resp.SLA.StartedAt = state.StartedAt
		resp.SLA.DeadlineAt = state.DeadlineAt
		resp.Autopilot.RunID = run.ID
		resp.Autopilot.ScenarioID = run.ScenarioID
		resp.Autopilot.Node = run.Node

		body, err = json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encode ingest response: %w", err)
		}

		return s.idem.WithQuerier(q).Save(ctx, params.WorkspaceID, params.IdempotencyKey, http.StatusCreated, body)
	})
	if err != nil {
		return IngestResult{}, err
	}

	s.afterIngest(ctx, params.WorkspaceID, resp)
	return IngestResult{StatusCode: http.StatusCreated, Body: body}, nil
}

// afterIngest runs the post-commit side effects: the exact-deadline breach
// check, the first question, and the ingestion event.
func (s *Service) afterIngest(ctx context.Context, workspaceID uuid.UUID, resp ingestResponse) {
	if s.scheduler != nil {
		if err := s.scheduler.ScheduleBreachCheck(ctx, resp.LeadID, resp.SLA.DeadlineAt); err != nil {
			s.log.Error("schedule breach check failed", "leadId", resp.LeadID, "error", err)
		}
	}

	if err := s.autopilot.SendCurrentQuestion(ctx, resp.LeadID); err != nil {
		s.log.Error("send first question failed", "leadId", resp.LeadID, "error", err)
	}

	s.bus.Publish(ctx, domainevents.LeadIngested{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      resp.LeadID,
		WorkspaceID: workspaceID,
	})
}

// markReused flips the idempotency flag on a stored response snapshot
// without touching anything else in it.
func markReused(stored []byte) ([]byte, error) {
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(stored, &decoded); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	decoded["idempotency"] = json.RawMessage(`{"reused":true}`)
	body, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("encode replayed response: %w", err)
	}
	return body, nil
}

// Get returns a lead by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (repository.Lead, error) {
	return s.repo.GetByID(ctx, id)
}

// Timeline returns the lead's audit trail in canonical order.
func (s *Service) Timeline(ctx context.Context, leadID uuid.UUID) ([]eventlog.Entry, error) {
	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return s.audit.ListByLead(ctx, lead.WorkspaceID, lead.ID)
}

// Delete removes a lead without history. Leads with any audit or proof
// history are immutable.
func (s *Service) Delete(ctx context.Context, workspaceID, id uuid.UUID) error {
	return s.repo.Delete(ctx, workspaceID, id)
}
