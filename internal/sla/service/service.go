// Package service implements the SLA clock engine: starting per-lead
// response deadlines, stopping them idempotently on proof, and sweeping for
// breaches.
package service

import (
	"context"
	"time"

	"leadpulse_backend/internal/eventlog"
	"leadpulse_backend/internal/sla/repository"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/logger"

	"github.com/google/uuid"
)

// StopResult reports what a stop attempt did. AlreadyStopped callers must
// not emit any further side effects.
type StopResult struct {
	Stopped        bool `json:"stopped"`
	AlreadyStopped bool `json:"alreadyStopped"`
}

// SweepResult aggregates one breach sweep pass.
type SweepResult struct {
	Processed int `json:"processed"`
	Breached  int `json:"breached"`
}

const sweepBatchSize = 500

// Service provides the SLA clock operations.
type Service struct {
	repo  repository.Repository
	audit eventlog.Log
	log   *logger.Logger
}

// New creates a new SLA service.
func New(repo repository.Repository, audit eventlog.Log, log *logger.Logger) *Service {
	return &Service{repo: repo, audit: audit, log: log}
}

// WithQuerier rebinds the service to q so callers can compose the clock
// start into their own transaction.
func (s *Service) WithQuerier(q db.Querier) *Service {
	return &Service{
		repo:  s.repo.WithQuerier(q),
		audit: s.audit.WithQuerier(q),
		log:   s.log,
	}
}

// StartClock opens the deadline window for a lead. The target is a
// precomputed minutes value; business-hours arithmetic happens upstream.
func (s *Service) StartClock(ctx context.Context, workspaceID, leadID uuid.UUID, targetMinutes int) (repository.SLAState, error) {
	now := time.Now().UTC()
	deadline := now.Add(time.Duration(targetMinutes) * time.Minute)

	state, err := s.repo.Create(ctx, leadID, now, deadline)
	if err != nil {
		return repository.SLAState{}, err
	}
	state.WorkspaceID = workspaceID

	if err := s.audit.Append(ctx, workspaceID, &leadID, eventlog.TypeSLAStarted, map[string]any{
		"startedAt":     state.StartedAt,
		"deadlineAt":    state.DeadlineAt,
		"targetMinutes": targetMinutes,
	}); err != nil {
		return repository.SLAState{}, err
	}

	return state, nil
}

// StopClock stops a running clock exactly once. Losing callers get
// AlreadyStopped and must suppress downstream effects; only the winner logs
// sla_stopped.
func (s *Service) StopClock(ctx context.Context, workspaceID, leadID uuid.UUID, reason string, proofEventID *uuid.UUID) (StopResult, error) {
	stopped, err := s.repo.Stop(ctx, leadID, reason, time.Now().UTC())
	if err != nil {
		return StopResult{}, err
	}
	if !stopped {
		return StopResult{AlreadyStopped: true}, nil
	}

	payload := map[string]any{"reason": reason}
	if proofEventID != nil {
		payload["proofEventId"] = proofEventID.String()
	}
	if err := s.audit.Append(ctx, workspaceID, &leadID, eventlog.TypeSLAStopped, payload); err != nil {
		return StopResult{}, err
	}

	s.log.Info("sla clock stopped", "leadId", leadID, "reason", reason)
	return StopResult{Stopped: true}, nil
}

// BreachSweep marks every overdue, still-running clock as breached. Each row
// goes through the conditional update again, so repeated sweeps and sweeps
// racing stop calls never double-log sla_breached.
func (s *Service) BreachSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	overdue, err := s.repo.ListOverdue(ctx, now, sweepBatchSize)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Processed: len(overdue)}
	for _, state := range overdue {
		breached, err := s.breachOne(ctx, state, now)
		if err != nil {
			s.log.Warn("breach sweep row failed", "leadId", state.LeadID, "error", err)
			continue
		}
		if breached {
			result.Breached++
		}
	}

	if result.Breached > 0 {
		s.log.Info("breach sweep complete", "processed", result.Processed, "breached", result.Breached)
	}
	return result, nil
}

// CheckBreach evaluates a single lead's clock, used by the scheduled
// deadline task. Firing alongside a sweep is harmless: both paths share the
// conditional update.
func (s *Service) CheckBreach(ctx context.Context, leadID uuid.UUID, now time.Time) (bool, error) {
	state, err := s.repo.GetByLead(ctx, leadID)
	if err != nil {
		return false, err
	}
	if state.StoppedAt != nil || state.BreachedAt != nil || state.DeadlineAt.After(now) {
		return false, nil
	}
	return s.breachOne(ctx, state, now)
}

func (s *Service) breachOne(ctx context.Context, state repository.SLAState, now time.Time) (bool, error) {
	won, err := s.repo.MarkBreached(ctx, state.LeadID, now)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	if err := s.audit.Append(ctx, state.WorkspaceID, &state.LeadID, eventlog.TypeSLABreached, map[string]any{
		"deadlineAt": state.DeadlineAt,
		"breachedAt": now,
	}); err != nil {
		return false, err
	}
	return true, nil
}
