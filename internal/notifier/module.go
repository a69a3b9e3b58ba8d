// Package notifier tells a human that a lead was handed over. It subscribes
// to the handover event and reaches the assigned user over WhatsApp, with
// email as the fallback channel.
package notifier

import (
	"context"
	"fmt"
	"strings"

	autopilotrepo "leadpulse_backend/internal/autopilot/repository"
	domainevents "leadpulse_backend/internal/events"
	"leadpulse_backend/internal/eventlog"
	leadsrepo "leadpulse_backend/internal/leads/repository"
	outboundrepo "leadpulse_backend/internal/outbound/repository"
	outboundsvc "leadpulse_backend/internal/outbound/service"
	"leadpulse_backend/internal/users"
	"leadpulse_backend/platform/events"
	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/phone"
)

type Module struct {
	users    users.Repository
	leads    leadsrepo.Repository
	runs     autopilotrepo.Repository
	outbound *outboundsvc.Service
	audit    eventlog.Log
	email    *EmailSender
	log      *logger.Logger
}

func NewModule(
	usersRepo users.Repository,
	leads leadsrepo.Repository,
	runs autopilotrepo.Repository,
	outbound *outboundsvc.Service,
	audit eventlog.Log,
	email *EmailSender,
	log *logger.Logger,
) *Module {
	return &Module{
		users:    usersRepo,
		leads:    leads,
		runs:     runs,
		outbound: outbound,
		audit:    audit,
		email:    email,
		log:      log,
	}
}

// Subscribe registers the handover listener on the bus.
func (m *Module) Subscribe(bus events.Bus) {
	bus.Subscribe(domainevents.AutopilotHandedOverEvent, events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		handover, ok := event.(domainevents.AutopilotHandedOver)
		if !ok {
			return fmt.Errorf("unexpected event type %T", event)
		}
		return m.notify(ctx, handover)
	}))
}

func (m *Module) notify(ctx context.Context, handover domainevents.AutopilotHandedOver) error {
	if handover.HandoverUserID == nil {
		return m.blocked(ctx, handover, "no_handover_user")
	}

	user, err := m.users.GetByID(ctx, *handover.HandoverUserID)
	if err != nil {
		m.log.Error("resolve handover user failed", "userId", *handover.HandoverUserID, "error", err)
		return m.blocked(ctx, handover, "user_not_found")
	}

	body, err := m.buildSummary(ctx, handover)
	if err != nil {
		return err
	}

	if phone.IsUsable(user.Phone) {
		return m.notifyWhatsApp(ctx, handover, user, body)
	}
	if m.email != nil && user.Email != "" {
		return m.notifyEmail(ctx, handover, user, body)
	}
	return m.blocked(ctx, handover, "user_unreachable")
}

func (m *Module) notifyWhatsApp(ctx context.Context, handover domainevents.AutopilotHandedOver, user users.User, body string) error {
	msg, err := m.outbound.Queue(ctx, outboundrepo.CreateParams{
		WorkspaceID: handover.WorkspaceID,
		LeadID:      handover.LeadID,
		ToPhone:     user.Phone,
		Body:        body,
	})
	if err != nil {
		return err
	}

	res, err := m.outbound.DispatchOne(ctx, msg.ID)
	if err != nil || res.Result == outboundsvc.ResultFailed {
		if err != nil {
			m.log.Error("handover notification dispatch failed", "leadId", handover.LeadID, "error", err)
		}
		return m.append(ctx, handover, eventlog.TypeHandoverNotifyFailed, map[string]any{
			"userId":  user.ID.String(),
			"channel": "whatsapp",
		})
	}

	return m.append(ctx, handover, eventlog.TypeHandoverNotified, map[string]any{
		"userId":  user.ID.String(),
		"channel": "whatsapp",
	})
}

func (m *Module) notifyEmail(ctx context.Context, handover domainevents.AutopilotHandedOver, user users.User, body string) error {
	subject := "Lead handed over to you"
	if err := m.email.Send(ctx, user.Email, subject, body); err != nil {
		m.log.Error("handover notification email failed", "leadId", handover.LeadID, "error", err)
		return m.append(ctx, handover, eventlog.TypeHandoverNotifyFailed, map[string]any{
			"userId":  user.ID.String(),
			"channel": "email",
		})
	}

	return m.append(ctx, handover, eventlog.TypeHandoverNotified, map[string]any{
		"userId":  user.ID.String(),
		"channel": "email",
	})
}

func (m *Module) blocked(ctx context.Context, handover domainevents.AutopilotHandedOver, reason string) error {
	return m.append(ctx, handover, eventlog.TypeHandoverNotifyBlocked, map[string]any{"reason": reason})
}

func (m *Module) append(ctx context.Context, handover domainevents.AutopilotHandedOver, eventType string, payload map[string]any) error {
	leadID := handover.LeadID
	return m.audit.Append(ctx, handover.WorkspaceID, &leadID, eventType, payload)
}

// buildSummary renders the short answer digest sent to the handover user.
func (m *Module) buildSummary(ctx context.Context, handover domainevents.AutopilotHandedOver) (string, error) {
	lead, err := m.leads.GetByID(ctx, handover.LeadID)
	if err != nil {
		return "", err
	}
	run, err := m.runs.GetRunByLead(ctx, handover.LeadID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	name := lead.Name
	if name == "" {
		name = "A lead"
	}
	fmt.Fprintf(&sb, "%s is qualified and waiting for you.\n", name)
	if lead.Phone != "" {
		fmt.Fprintf(&sb, "Phone: %s\n", lead.Phone)
	}
	for slot, answer := range run.Answers {
		fmt.Fprintf(&sb, "%s: %s\n", slot, answer)
	}
	return sb.String(), nil
}
