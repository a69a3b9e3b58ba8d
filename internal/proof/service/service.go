package service

import (
	"context"
	"errors"
	"strings"
	"time"

	autopilotsvc "leadpulse_backend/internal/autopilot/service"
	"leadpulse_backend/internal/eventlog"
	leadsrepo "leadpulse_backend/internal/leads/repository"
	outboundrepo "leadpulse_backend/internal/outbound/repository"
	"leadpulse_backend/internal/proof/repository"
	slaservice "leadpulse_backend/internal/sla/service"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/phone"
	"leadpulse_backend/platform/sanitize"

	"github.com/google/uuid"
)

// StatusParams is a provider delivery status callback.
type StatusParams struct {
	Provider          string
	ProviderMessageID string
	Status            string
	OccurredAt        time.Time
}

// StatusResult reports how a status callback was handled. ProofEventID names
// the stored proof on both a fresh record and a redelivery, so duplicate
// callbacks still point at the original row.
type StatusResult struct {
	Recorded     bool
	Reused       bool
	Ignored      string
	SLAStopped   bool
	ProofEventID *uuid.UUID
	LeadID       *uuid.UUID
}

// InboundParams is a provider inbound message callback.
type InboundParams struct {
	Provider          string
	ProviderMessageID string
	FromPhone         string
	Text              string
	OccurredAt        time.Time
}

// InboundResult reports how an inbound message was handled.
type InboundResult struct {
	Matched    bool
	LeadID     *uuid.UUID
	Reused     bool
	Advanced   bool
	HandedOver bool
	SLAStopped bool
}

type Service struct {
	tx        db.TxRunner
	repo      repository.Repository
	leads     leadsrepo.Repository
	messages  outboundrepo.Repository
	sla       *slaservice.Service
	autopilot *autopilotsvc.Service
	audit     eventlog.Log
	log       *logger.Logger
}

func NewService(
	tx db.TxRunner,
	repo repository.Repository,
	leads leadsrepo.Repository,
	messages outboundrepo.Repository,
	sla *slaservice.Service,
	autopilot *autopilotsvc.Service,
	audit eventlog.Log,
	log *logger.Logger,
) *Service {
	return &Service{
		tx:        tx,
		repo:      repo,
		leads:     leads,
		messages:  messages,
		sla:       sla,
		autopilot: autopilot,
		audit:     audit,
		log:       log,
	}
}

// RecordSent stores the SENT proof after a successful provider call. SENT is
// not contact proof and never stops the clock.
func (s *Service) RecordSent(ctx context.Context, leadID uuid.UUID, providerName, providerMessageID string, at time.Time) error {
	_, _, err := s.repo.Insert(ctx, repository.InsertParams{
		LeadID:            leadID,
		Channel:           repository.ChannelWhatsApp,
		Type:              repository.TypeSent,
		Provider:          providerName,
		ProviderMessageID: providerMessageID,
		OccurredAt:        at,
	})
	return err
}

// statusProofType maps a provider status string to a proof type. Unknown
// statuses are ignored rather than rejected; providers add statuses freely.
func statusProofType(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "sent":
		return repository.TypeSent
	case "delivered":
		return repository.TypeDelivered
	case "read":
		return repository.TypeRead
	case "replied":
		return repository.TypeReplied
	default:
		return ""
	}
}

// HandleStatus processes one delivery status callback. The proof insert and
// the clock stop commit together; redeliveries change nothing.
func (s *Service) HandleStatus(ctx context.Context, params StatusParams) (StatusResult, error) {
	proofType := statusProofType(params.Status)
	if proofType == "" {
		return StatusResult{Ignored: "unknown_status"}, nil
	}

	msg, err := s.messages.GetByProviderMessageID(ctx, params.Provider, params.ProviderMessageID)
	if err != nil {
		if apperr.GetKind(err) == apperr.KindNotFound {
			// Status for a message this system never sent. Acknowledge so the
			// provider stops retrying.
			return StatusResult{Ignored: "unknown_message"}, nil
		}
		return StatusResult{}, err
	}

	occurredAt := params.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var result StatusResult
	err = s.tx(ctx, func(q db.Querier) error {
		proofEvent, fresh, err := s.repo.WithQuerier(q).Insert(ctx, repository.InsertParams{
			LeadID:            msg.LeadID,
			Channel:           repository.ChannelWhatsApp,
			Type:              proofType,
			Provider:          params.Provider,
			ProviderMessageID: params.ProviderMessageID,
			OccurredAt:        occurredAt,
		})
		if err != nil {
			return err
		}
		result.ProofEventID = &proofEvent.ID
		result.LeadID = &msg.LeadID
		if !fresh {
			result.Reused = true
			return nil
		}
		result.Recorded = true

		if !repository.StopsClock(proofType) {
			return nil
		}

		stop, err := s.sla.WithQuerier(q).StopClock(ctx, msg.WorkspaceID, msg.LeadID, autopilotsvc.StopReasonProof, &proofEvent.ID)
		if err != nil {
			return err
		}
		result.SLAStopped = stop.Stopped
		return nil
	})
	if err != nil {
		return StatusResult{}, err
	}
	return result, nil
}

// HandleInbound routes one inbound WhatsApp message. A phone match on an open
// lead feeds the autopilot reply path; everything else lands on the
// workspace inbox lead.
func (s *Service) HandleInbound(ctx context.Context, workspaceID uuid.UUID, params InboundParams) (InboundResult, error) {
	normalized := phone.NormalizeE164(params.FromPhone)

	occurredAt := params.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	lead, err := s.leads.FindOpenByPhone(ctx, workspaceID, normalized)
	if err != nil {
		if apperr.GetKind(err) != apperr.KindNotFound {
			return InboundResult{}, err
		}
		return s.handleUnmatched(ctx, workspaceID, normalized, params, occurredAt)
	}

	reply, err := s.autopilot.ProcessReply(ctx, autopilotsvc.ReplyRequest{
		LeadID:            lead.ID,
		Text:              params.Text,
		Provider:          params.Provider,
		ProviderMessageID: params.ProviderMessageID,
		OccurredAt:        occurredAt,
	})
	if err != nil {
		return InboundResult{}, err
	}

	return InboundResult{
		Matched:    true,
		LeadID:     &lead.ID,
		Reused:     reply.Reused,
		Advanced:   reply.Advanced,
		HandedOver: reply.HandedOver,
		SLAStopped: reply.SLAStopped,
	}, nil
}

func (s *Service) handleUnmatched(ctx context.Context, workspaceID uuid.UUID, normalized string, params InboundParams, occurredAt time.Time) (InboundResult, error) {
	var inbox leadsrepo.Lead
	err := s.tx(ctx, func(q db.Querier) error {
		var err error
		inbox, err = s.leads.WithQuerier(q).EnsureInboxLead(ctx, workspaceID)
		if err != nil {
			return err
		}

		_, fresh, err := s.repo.WithQuerier(q).Insert(ctx, repository.InsertParams{
			LeadID:            inbox.ID,
			Channel:           repository.ChannelWhatsApp,
			Type:              repository.TypeInbound,
			Provider:          params.Provider,
			ProviderMessageID: params.ProviderMessageID,
			OccurredAt:        occurredAt,
		})
		if err != nil {
			return err
		}
		if !fresh {
			return errDuplicateInbound
		}

		return s.audit.WithQuerier(q).Append(ctx, workspaceID, &inbox.ID, eventlog.TypeInboundUnmatched, map[string]any{
			"from": normalized,
			"text": sanitize.Text(params.Text),
		})
	})
	if err != nil {
		if errors.Is(err, errDuplicateInbound) {
			return InboundResult{LeadID: &inbox.ID, Reused: true}, nil
		}
		return InboundResult{}, err
	}
	return InboundResult{LeadID: &inbox.ID}, nil
}

// errDuplicateInbound aborts the unmatched-inbound transaction when the
// provider redelivered a message already filed on the inbox lead.
var errDuplicateInbound = errors.New("duplicate inbound message")

// ListByLead returns the proof history of a lead.
func (s *Service) ListByLead(ctx context.Context, leadID uuid.UUID) ([]repository.ProofEvent, error) {
	return s.repo.ListByLead(ctx, leadID)
}
