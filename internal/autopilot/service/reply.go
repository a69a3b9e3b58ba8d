package service

import (
	"context"
	"time"

	"leadpulse_backend/internal/autopilot/repository"
	proofrepo "leadpulse_backend/internal/proof/repository"
	"leadpulse_backend/platform/db"

	"github.com/google/uuid"
)

// StopReasonProof is the stop reason recorded when contact proof arrives.
const StopReasonProof = "proof_received"

// ReplyRequest is one inbound WhatsApp message attributed to a lead.
type ReplyRequest struct {
	LeadID            uuid.UUID
	Text              string
	Provider          string
	ProviderMessageID string
	OccurredAt        time.Time
}

// ReplyResult is what a reply did. Reused means the provider redelivered a
// message that was already processed; nothing changed.
type ReplyResult struct {
	Reused     bool
	Advanced   bool
	HandedOver bool
	SLAStopped bool
	// Run is the state after processing, echoed back to the caller.
	Run repository.Run
	// QueuedMessageID names the next question's message, nil when none was
	// queued. MessageBlocked explains the phone-guard case.
	QueuedMessageID *uuid.UUID
	MessageBlocked  bool
}

// ProcessReply is the full inbound reply path: proof dedup, clock stop and
// run advancement commit together; delivery of the next question and the
// handover event run after commit.
func (s *Service) ProcessReply(ctx context.Context, req ReplyRequest) (ReplyResult, error) {
	var (
		outcome ReplyOutcome
		result  ReplyResult
	)

	err := s.tx(ctx, func(q db.Querier) error {
		proofEvent, fresh, err := s.proofs.WithQuerier(q).Insert(ctx, proofrepo.InsertParams{
			LeadID:            req.LeadID,
			Channel:           proofrepo.ChannelWhatsApp,
			Type:              proofrepo.TypeInbound,
			Provider:          req.Provider,
			ProviderMessageID: req.ProviderMessageID,
			OccurredAt:        req.OccurredAt,
		})
		if err != nil {
			return err
		}
		if !fresh {
			result.Reused = true
			return nil
		}

		lead, err := s.leads.WithQuerier(q).GetByID(ctx, req.LeadID)
		if err != nil {
			return err
		}

		stop, err := s.sla.WithQuerier(q).StopClock(ctx, lead.WorkspaceID, lead.ID, StopReasonProof, &proofEvent.ID)
		if err != nil {
			return err
		}
		result.SLAStopped = stop.Stopped

		outcome, err = s.ProcessReplyTx(ctx, q, req.LeadID, req.Text)
		return err
	})
	if err != nil {
		return ReplyResult{}, err
	}
	if result.Reused {
		run, err := s.repo.GetRunByLead(ctx, req.LeadID)
		if err != nil {
			return ReplyResult{}, err
		}
		result.Run = run
		return result, nil
	}

	s.FinishReply(ctx, outcome)
	result.Advanced = outcome.Advanced
	result.HandedOver = outcome.HandedOver
	result.Run = outcome.Run
	result.QueuedMessageID = outcome.QueuedMessageID
	result.MessageBlocked = outcome.MessageBlocked
	return result, nil
}
