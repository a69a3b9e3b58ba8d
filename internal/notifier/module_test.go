package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	autopilotrepo "leadpulse_backend/internal/autopilot/repository"
	domainevents "leadpulse_backend/internal/events"
	"leadpulse_backend/internal/eventlog"
	leadsrepo "leadpulse_backend/internal/leads/repository"
	"leadpulse_backend/internal/outbound/provider"
	outboundrepo "leadpulse_backend/internal/outbound/repository"
	outboundsvc "leadpulse_backend/internal/outbound/service"
	"leadpulse_backend/internal/users"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/events"
	"leadpulse_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeAudit struct {
	entries []eventlog.Entry
}

func (a *fakeAudit) Append(_ context.Context, workspaceID uuid.UUID, leadID *uuid.UUID, eventType string, payload map[string]any) error {
	a.entries = append(a.entries, eventlog.Entry{WorkspaceID: workspaceID, LeadID: leadID, Type: eventType, Payload: payload})
	return nil
}

func (a *fakeAudit) ListByLead(context.Context, uuid.UUID, uuid.UUID) ([]eventlog.Entry, error) {
	return a.entries, nil
}

func (a *fakeAudit) WithQuerier(db.Querier) eventlog.Log { return a }

func (a *fakeAudit) lastOfType(eventType string) *eventlog.Entry {
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].Type == eventType {
			return &a.entries[i]
		}
	}
	return nil
}

type fakeUsers struct {
	byID map[uuid.UUID]users.User
}

func (r *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (users.User, error) {
	user, ok := r.byID[id]
	if !ok {
		return users.User{}, apperr.NotFound("user not found")
	}
	return user, nil
}

func (r *fakeUsers) Create(_ context.Context, workspaceID uuid.UUID, name, email, phone string) (users.User, error) {
	user := users.User{ID: uuid.New(), WorkspaceID: workspaceID, Name: name, Email: email, Phone: phone}
	r.byID[user.ID] = user
	return user, nil
}

type fakeLeadRepo struct {
	leads map[uuid.UUID]leadsrepo.Lead
}

func (r *fakeLeadRepo) Create(context.Context, leadsrepo.CreateParams) (leadsrepo.Lead, error) {
	return leadsrepo.Lead{}, nil
}

func (r *fakeLeadRepo) GetByID(_ context.Context, id uuid.UUID) (leadsrepo.Lead, error) {
	lead, ok := r.leads[id]
	if !ok {
		return leadsrepo.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (r *fakeLeadRepo) FindOpenByPhone(context.Context, uuid.UUID, string) (leadsrepo.Lead, error) {
	return leadsrepo.Lead{}, apperr.NotFound("lead not found")
}

func (r *fakeLeadRepo) EnsureInboxLead(context.Context, uuid.UUID) (leadsrepo.Lead, error) {
	return leadsrepo.Lead{}, nil
}

func (r *fakeLeadRepo) EnsureWorkspace(context.Context, uuid.UUID, string) error { return nil }
func (r *fakeLeadRepo) Delete(context.Context, uuid.UUID, uuid.UUID) error      { return nil }
func (r *fakeLeadRepo) WithQuerier(db.Querier) leadsrepo.Repository             { return r }

type fakeRunRepo struct {
	runs map[uuid.UUID]autopilotrepo.Run
}

func (r *fakeRunRepo) CreateScenario(context.Context, autopilotrepo.ScenarioParams) (autopilotrepo.Scenario, error) {
	return autopilotrepo.Scenario{}, nil
}

func (r *fakeRunRepo) GetScenario(context.Context, uuid.UUID, uuid.UUID) (autopilotrepo.Scenario, error) {
	return autopilotrepo.Scenario{}, apperr.NotFound("scenario not found")
}

func (r *fakeRunRepo) ListScenarios(context.Context, uuid.UUID) ([]autopilotrepo.Scenario, error) {
	return nil, nil
}

func (r *fakeRunRepo) UpdateScenario(context.Context, uuid.UUID, uuid.UUID, autopilotrepo.ScenarioParams) (autopilotrepo.Scenario, error) {
	return autopilotrepo.Scenario{}, nil
}

func (r *fakeRunRepo) DeleteScenario(context.Context, uuid.UUID, uuid.UUID) error     { return nil }
func (r *fakeRunRepo) SetDefaultScenario(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (r *fakeRunRepo) EnsureDefaultScenario(context.Context, uuid.UUID) (autopilotrepo.Scenario, error) {
	return autopilotrepo.Scenario{}, nil
}

func (r *fakeRunRepo) CreateRun(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) (autopilotrepo.Run, error) {
	return autopilotrepo.Run{}, nil
}

func (r *fakeRunRepo) GetRunByLead(_ context.Context, leadID uuid.UUID) (autopilotrepo.Run, error) {
	run, ok := r.runs[leadID]
	if !ok {
		return autopilotrepo.Run{}, apperr.NotFound("run not found")
	}
	return run, nil
}

func (r *fakeRunRepo) AdvanceRun(context.Context, uuid.UUID, int, autopilotrepo.RunUpdate) (bool, error) {
	return false, nil
}

func (r *fakeRunRepo) ResetRun(context.Context, uuid.UUID, uuid.UUID) (autopilotrepo.Run, error) {
	return autopilotrepo.Run{}, nil
}

func (r *fakeRunRepo) ResetWorkspaceRuns(context.Context, uuid.UUID, uuid.UUID) ([]autopilotrepo.RunSwitch, error) {
	return nil, nil
}

func (r *fakeRunRepo) ResetScenarioRuns(context.Context, uuid.UUID, uuid.UUID) ([]autopilotrepo.RunSwitch, error) {
	return nil, nil
}

func (r *fakeRunRepo) WithQuerier(db.Querier) autopilotrepo.Repository { return r }

type fakeOutboundRepo struct {
	messages map[uuid.UUID]outboundrepo.Message
}

func (r *fakeOutboundRepo) Create(_ context.Context, params outboundrepo.CreateParams) (outboundrepo.Message, error) {
	msg := outboundrepo.Message{
		ID:          uuid.New(),
		WorkspaceID: params.WorkspaceID,
		LeadID:      params.LeadID,
		Status:      outboundrepo.StatusQueued,
		Channel:     outboundrepo.ChannelWhatsApp,
		ToPhone:     params.ToPhone,
		Body:        params.Body,
	}
	r.messages[msg.ID] = msg
	return msg, nil
}

func (r *fakeOutboundRepo) GetByID(_ context.Context, id uuid.UUID) (outboundrepo.Message, error) {
	msg, ok := r.messages[id]
	if !ok {
		return outboundrepo.Message{}, apperr.NotFound("message not found")
	}
	return msg, nil
}

func (r *fakeOutboundRepo) GetByProviderMessageID(context.Context, string, string) (outboundrepo.Message, error) {
	return outboundrepo.Message{}, apperr.NotFound("message not found")
}

func (r *fakeOutboundRepo) MarkSent(_ context.Context, id uuid.UUID, providerName, providerMessageID string, sentAt time.Time) (bool, error) {
	msg := r.messages[id]
	if msg.Status != outboundrepo.StatusQueued {
		return false, nil
	}
	msg.Status = outboundrepo.StatusSent
	msg.Provider = &providerName
	msg.ProviderMessageID = &providerMessageID
	msg.SentAt = &sentAt
	r.messages[id] = msg
	return true, nil
}

func (r *fakeOutboundRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	msg := r.messages[id]
	if msg.Status != outboundrepo.StatusQueued {
		return false, nil
	}
	msg.Status = outboundrepo.StatusFailed
	msg.FailReason = &reason
	r.messages[id] = msg
	return true, nil
}

func (r *fakeOutboundRepo) ListQueued(context.Context, int) ([]outboundrepo.Message, error) {
	return nil, nil
}

func (r *fakeOutboundRepo) WithQuerier(db.Querier) outboundrepo.Repository { return r }

type fakeSender struct {
	err error
}

func (s *fakeSender) Name() string { return "fake" }

func (s *fakeSender) Send(context.Context, string, string) (provider.SendResult, error) {
	if s.err != nil {
		return provider.SendResult{}, s.err
	}
	return provider.SendResult{Provider: "fake", ProviderMessageID: uuid.NewString(), SentAt: time.Now().UTC()}, nil
}

type notifierFixture struct {
	module   *Module
	bus      events.Bus
	audit    *fakeAudit
	users    *fakeUsers
	leads    *fakeLeadRepo
	runs     *fakeRunRepo
	outbound *fakeOutboundRepo
	sender   *fakeSender
}

func newNotifierFixture() *notifierFixture {
	log := logger.New("development")
	audit := &fakeAudit{}
	sender := &fakeSender{}
	outboundRepo := &fakeOutboundRepo{messages: make(map[uuid.UUID]outboundrepo.Message)}
	outbound := outboundsvc.NewService(outboundRepo, sender, audit, log, time.Second)

	f := &notifierFixture{
		bus:      events.NewInMemoryBus(log),
		audit:    audit,
		users:    &fakeUsers{byID: make(map[uuid.UUID]users.User)},
		leads:    &fakeLeadRepo{leads: make(map[uuid.UUID]leadsrepo.Lead)},
		runs:     &fakeRunRepo{runs: make(map[uuid.UUID]autopilotrepo.Run)},
		outbound: outboundRepo,
		sender:   sender,
	}
	f.module = NewModule(f.users, f.leads, f.runs, outbound, audit, nil, log)
	f.module.Subscribe(f.bus)
	return f
}

func (f *notifierFixture) seedHandover(userID *uuid.UUID) domainevents.AutopilotHandedOver {
	workspaceID := uuid.New()
	lead := leadsrepo.Lead{ID: uuid.New(), WorkspaceID: workspaceID, Name: "Jan Jansen", Phone: "+31612345678"}
	f.leads.leads[lead.ID] = lead
	f.runs.runs[lead.ID] = autopilotrepo.Run{
		ID:          uuid.New(),
		LeadID:      lead.ID,
		WorkspaceID: workspaceID,
		Status:      autopilotrepo.RunHandedOver,
		Answers:     map[string]string{"budget": "5000 euro", "timeline": "next month"},
	}

	return domainevents.AutopilotHandedOver{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         lead.ID,
		WorkspaceID:    workspaceID,
		ScenarioID:     uuid.New(),
		HandoverUserID: userID,
		Reason:         "questions_exhausted",
	}
}

func TestNotifyBlockedWithoutHandoverUser(t *testing.T) {
	f := newNotifierFixture()
	handover := f.seedHandover(nil)

	if err := f.bus.PublishSync(context.Background(), handover); err != nil {
		t.Fatalf("PublishSync returned error: %v", err)
	}

	entry := f.audit.lastOfType(eventlog.TypeHandoverNotifyBlocked)
	if entry == nil {
		t.Fatal("expected handover_notification_blocked entry")
	}
	if entry.Payload["reason"] != "no_handover_user" {
		t.Fatalf("unexpected reason %v", entry.Payload["reason"])
	}
}

func TestNotifyBlockedWhenUserUnknown(t *testing.T) {
	f := newNotifierFixture()
	missing := uuid.New()
	handover := f.seedHandover(&missing)

	if err := f.bus.PublishSync(context.Background(), handover); err != nil {
		t.Fatalf("PublishSync returned error: %v", err)
	}

	entry := f.audit.lastOfType(eventlog.TypeHandoverNotifyBlocked)
	if entry == nil {
		t.Fatal("expected handover_notification_blocked entry")
	}
	if entry.Payload["reason"] != "user_not_found" {
		t.Fatalf("unexpected reason %v", entry.Payload["reason"])
	}
}

func TestNotifySendsWhatsAppSummary(t *testing.T) {
	f := newNotifierFixture()
	user, _ := f.users.Create(context.Background(), uuid.New(), "Agent Anna", "anna@example.com", "+31687654321")
	handover := f.seedHandover(&user.ID)

	if err := f.bus.PublishSync(context.Background(), handover); err != nil {
		t.Fatalf("PublishSync returned error: %v", err)
	}

	entry := f.audit.lastOfType(eventlog.TypeHandoverNotified)
	if entry == nil {
		t.Fatal("expected handover_notified entry")
	}
	if entry.Payload["channel"] != "whatsapp" {
		t.Fatalf("expected whatsapp channel, got %v", entry.Payload["channel"])
	}

	var sent *outboundrepo.Message
	for _, msg := range f.outbound.messages {
		if msg.ToPhone == user.Phone {
			m := msg
			sent = &m
		}
	}
	if sent == nil {
		t.Fatal("expected a message to the handover user")
	}
	if sent.Status != outboundrepo.StatusSent {
		t.Fatalf("expected sent message, got %s", sent.Status)
	}
	if !strings.Contains(sent.Body, "Jan Jansen") || !strings.Contains(sent.Body, "5000 euro") {
		t.Fatalf("summary missing lead details: %q", sent.Body)
	}
}

func TestNotifyRecordsFailureWhenProviderErrors(t *testing.T) {
	f := newNotifierFixture()
	f.sender.err = errors.New("connection refused")
	user, _ := f.users.Create(context.Background(), uuid.New(), "Agent Anna", "", "+31687654321")
	handover := f.seedHandover(&user.ID)

	if err := f.bus.PublishSync(context.Background(), handover); err != nil {
		t.Fatalf("PublishSync returned error: %v", err)
	}

	entry := f.audit.lastOfType(eventlog.TypeHandoverNotifyFailed)
	if entry == nil {
		t.Fatal("expected handover_notification_failed entry")
	}
	if entry.Payload["channel"] != "whatsapp" {
		t.Fatalf("expected whatsapp channel, got %v", entry.Payload["channel"])
	}
}

func TestNotifyBlockedWhenUserUnreachable(t *testing.T) {
	f := newNotifierFixture()
	user, _ := f.users.Create(context.Background(), uuid.New(), "Agent Anna", "anna@example.com", "")
	handover := f.seedHandover(&user.ID)

	// No email sender is wired, so an email-only user is unreachable.
	if err := f.bus.PublishSync(context.Background(), handover); err != nil {
		t.Fatalf("PublishSync returned error: %v", err)
	}

	entry := f.audit.lastOfType(eventlog.TypeHandoverNotifyBlocked)
	if entry == nil {
		t.Fatal("expected handover_notification_blocked entry")
	}
	if entry.Payload["reason"] != "user_unreachable" {
		t.Fatalf("unexpected reason %v", entry.Payload["reason"])
	}
}
