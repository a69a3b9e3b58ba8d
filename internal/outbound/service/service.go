package service

import (
	"context"
	"fmt"
	"time"

	"leadpulse_backend/internal/eventlog"
	"leadpulse_backend/internal/outbound/provider"
	"leadpulse_backend/internal/outbound/repository"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/phone"

	"github.com/google/uuid"
)

// Dispatch results.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

const sweepBatchSize = 200

// DispatchResult reports what happened to a single message.
type DispatchResult struct {
	Result string
	Reason string
}

// SweepResult summarizes one pass over the queued backlog.
type SweepResult struct {
	Processed int
	Sent      int
	Failed    int
}

// ProofRecorder stores a SENT proof after a successful provider call. The
// proof module plugs in after construction.
type ProofRecorder interface {
	RecordSent(ctx context.Context, leadID uuid.UUID, providerName, providerMessageID string, at time.Time) error
}

type Service struct {
	repo    repository.Repository
	sender  provider.Sender
	audit   eventlog.Log
	proofs  ProofRecorder
	log     *logger.Logger
	timeout time.Duration
}

func NewService(repo repository.Repository, sender provider.Sender, audit eventlog.Log, log *logger.Logger, timeout time.Duration) *Service {
	return &Service{
		repo:    repo,
		sender:  sender,
		audit:   audit,
		log:     log,
		timeout: timeout,
	}
}

// SetProofRecorder wires the proof store in. Optional; without it sends are
// still recorded on the message row and audit trail.
func (s *Service) SetProofRecorder(p ProofRecorder) {
	s.proofs = p
}

// WithQuerier rebinds the queueing side to a transaction. Dispatching always
// runs on the pool.
func (s *Service) WithQuerier(q db.Querier) *Service {
	clone := *s
	clone.repo = s.repo.WithQuerier(q)
	clone.audit = s.audit.WithQuerier(q)
	return &clone
}

// Queue creates a QUEUED message and records it on the audit trail. Callers
// inside a transaction use WithQuerier first so the row and the log entry
// commit together.
func (s *Service) Queue(ctx context.Context, params repository.CreateParams) (repository.Message, error) {
	msg, err := s.repo.Create(ctx, params)
	if err != nil {
		return repository.Message{}, err
	}

	if err := s.audit.Append(ctx, msg.WorkspaceID, &msg.LeadID, eventlog.TypeMessageQueued, map[string]any{
		"messageId": msg.ID.String(),
	}); err != nil {
		return repository.Message{}, fmt.Errorf("log queued message: %w", err)
	}
	return msg, nil
}

// DispatchOne attempts delivery of a single queued message. Concurrent
// dispatchers are safe: the status transition picks exactly one winner and
// everyone else skips.
func (s *Service) DispatchOne(ctx context.Context, messageID uuid.UUID) (DispatchResult, error) {
	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		if apperr.GetKind(err) == apperr.KindNotFound {
			return DispatchResult{Result: ResultSkipped, Reason: "not_found"}, nil
		}
		return DispatchResult{}, err
	}

	if msg.Status != repository.StatusQueued {
		return DispatchResult{Result: ResultSkipped, Reason: "not_queued"}, nil
	}

	if !phone.IsUsable(msg.ToPhone) {
		return s.fail(ctx, msg, "missing_toPhone")
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.sender.Send(sendCtx, msg.ToPhone, msg.Body)
	if err != nil {
		s.log.ProviderError(s.sender.Name(), "send", err.Error())
		return s.fail(ctx, msg, "provider_error: "+err.Error())
	}

	won, err := s.repo.MarkSent(ctx, msg.ID, res.Provider, res.ProviderMessageID, res.SentAt)
	if err != nil {
		return DispatchResult{}, err
	}
	if !won {
		return DispatchResult{Result: ResultSkipped, Reason: "raced"}, nil
	}

	if s.proofs != nil {
		if err := s.proofs.RecordSent(ctx, msg.LeadID, res.Provider, res.ProviderMessageID, res.SentAt); err != nil {
			s.log.Error("record sent proof failed", "messageId", msg.ID, "error", err)
		}
	}

	if err := s.audit.Append(ctx, msg.WorkspaceID, &msg.LeadID, eventlog.TypeMessageSent, map[string]any{
		"messageId":         msg.ID.String(),
		"provider":          res.Provider,
		"providerMessageId": res.ProviderMessageID,
	}); err != nil {
		s.log.Error("log sent message failed", "messageId", msg.ID, "error", err)
	}
	s.logAttempt(ctx, msg, ResultSent)

	return DispatchResult{Result: ResultSent}, nil
}

func (s *Service) fail(ctx context.Context, msg repository.Message, reason string) (DispatchResult, error) {
	won, err := s.repo.MarkFailed(ctx, msg.ID, reason)
	if err != nil {
		return DispatchResult{}, err
	}
	if !won {
		return DispatchResult{Result: ResultSkipped, Reason: "raced"}, nil
	}

	if err := s.audit.Append(ctx, msg.WorkspaceID, &msg.LeadID, eventlog.TypeMessageFailed, map[string]any{
		"messageId": msg.ID.String(),
		"reason":    reason,
	}); err != nil {
		s.log.Error("log failed message failed", "messageId", msg.ID, "error", err)
	}
	s.logAttempt(ctx, msg, ResultFailed)

	return DispatchResult{Result: ResultFailed, Reason: reason}, nil
}

func (s *Service) logAttempt(ctx context.Context, msg repository.Message, result string) {
	if err := s.audit.Append(ctx, msg.WorkspaceID, &msg.LeadID, eventlog.TypeAutoDispatchAttempted, map[string]any{
		"messageId": msg.ID.String(),
		"result":    result,
	}); err != nil {
		s.log.Error("log dispatch attempt failed", "messageId", msg.ID, "error", err)
	}
}

// DispatchQueued drains up to one batch of the queued backlog. Used by the
// background sweep and the manual dispatch endpoint.
func (s *Service) DispatchQueued(ctx context.Context) (SweepResult, error) {
	queued, err := s.repo.ListQueued(ctx, sweepBatchSize)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, msg := range queued {
		result.Processed++
		res, err := s.DispatchOne(ctx, msg.ID)
		if err != nil {
			s.log.Error("dispatch sweep item failed", "messageId", msg.ID, "error", err)
			continue
		}
		switch res.Result {
		case ResultSent:
			result.Sent++
		case ResultFailed:
			result.Failed++
		}
	}
	return result, nil
}
