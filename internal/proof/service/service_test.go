package service

import (
	"context"
	"testing"
	"time"

	"leadpulse_backend/internal/eventlog"
	outboundrepo "leadpulse_backend/internal/outbound/repository"
	"leadpulse_backend/internal/proof/repository"
	slarepo "leadpulse_backend/internal/sla/repository"
	slaservice "leadpulse_backend/internal/sla/service"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/logger"

	"github.com/google/uuid"
)

// testTx runs the transactional closure directly against the fakes.
var testTx db.TxRunner = func(_ context.Context, fn func(db.Querier) error) error {
	return fn(nil)
}

type fakeAudit struct {
	entries []eventlog.Entry
}

func (a *fakeAudit) Append(_ context.Context, workspaceID uuid.UUID, leadID *uuid.UUID, eventType string, payload map[string]any) error {
	a.entries = append(a.entries, eventlog.Entry{
		WorkspaceID: workspaceID,
		LeadID:      leadID,
		Type:        eventType,
		Payload:     payload,
	})
	return nil
}

func (a *fakeAudit) ListByLead(context.Context, uuid.UUID, uuid.UUID) ([]eventlog.Entry, error) {
	return a.entries, nil
}

func (a *fakeAudit) WithQuerier(db.Querier) eventlog.Log { return a }

func (a *fakeAudit) countType(eventType string) int {
	count := 0
	for _, e := range a.entries {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

type fakeSLAStore struct {
	states map[uuid.UUID]slarepo.SLAState
}

func newFakeSLAStore() *fakeSLAStore {
	return &fakeSLAStore{states: make(map[uuid.UUID]slarepo.SLAState)}
}

func (r *fakeSLAStore) Create(_ context.Context, leadID uuid.UUID, startedAt, deadlineAt time.Time) (slarepo.SLAState, error) {
	state := slarepo.SLAState{ID: uuid.New(), LeadID: leadID, StartedAt: startedAt, DeadlineAt: deadlineAt}
	r.states[leadID] = state
	return state, nil
}

func (r *fakeSLAStore) GetByLead(_ context.Context, leadID uuid.UUID) (slarepo.SLAState, error) {
	state, ok := r.states[leadID]
	if !ok {
		return slarepo.SLAState{}, apperr.NotFound("sla state not found")
	}
	return state, nil
}

func (r *fakeSLAStore) Stop(_ context.Context, leadID uuid.UUID, reason string, at time.Time) (bool, error) {
	state, ok := r.states[leadID]
	if !ok || state.StoppedAt != nil {
		return false, nil
	}
	state.StoppedAt = &at
	state.StopReason = &reason
	r.states[leadID] = state
	return true, nil
}

func (r *fakeSLAStore) ListOverdue(context.Context, time.Time, int) ([]slarepo.SLAState, error) {
	return nil, nil
}

func (r *fakeSLAStore) MarkBreached(_ context.Context, leadID uuid.UUID, at time.Time) (bool, error) {
	state, ok := r.states[leadID]
	if !ok || state.StoppedAt != nil || state.BreachedAt != nil {
		return false, nil
	}
	state.BreachedAt = &at
	r.states[leadID] = state
	return true, nil
}

func (r *fakeSLAStore) WithQuerier(db.Querier) slarepo.Repository { return r }

type dedupKey struct {
	leadID            uuid.UUID
	providerMessageID string
	proofType         string
	channel           string
}

type fakeProofRepo struct {
	events map[dedupKey]repository.ProofEvent
}

func newFakeProofRepo() *fakeProofRepo {
	return &fakeProofRepo{events: make(map[dedupKey]repository.ProofEvent)}
}

func (r *fakeProofRepo) Insert(_ context.Context, params repository.InsertParams) (repository.ProofEvent, bool, error) {
	key := dedupKey{params.LeadID, params.ProviderMessageID, params.Type, params.Channel}
	if existing, ok := r.events[key]; ok {
		return existing, false, nil
	}
	event := repository.ProofEvent{
		ID:                uuid.New(),
		LeadID:            params.LeadID,
		Channel:           params.Channel,
		Type:              params.Type,
		Provider:          params.Provider,
		ProviderMessageID: params.ProviderMessageID,
		OccurredAt:        params.OccurredAt,
	}
	r.events[key] = event
	return event, true, nil
}

func (r *fakeProofRepo) ListByLead(_ context.Context, leadID uuid.UUID) ([]repository.ProofEvent, error) {
	var out []repository.ProofEvent
	for _, e := range r.events {
		if e.LeadID == leadID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeProofRepo) WithQuerier(db.Querier) repository.Repository { return r }

type fakeMessageReader struct {
	messages map[string]outboundrepo.Message
}

func (r *fakeMessageReader) Create(context.Context, outboundrepo.CreateParams) (outboundrepo.Message, error) {
	return outboundrepo.Message{}, nil
}

func (r *fakeMessageReader) GetByID(context.Context, uuid.UUID) (outboundrepo.Message, error) {
	return outboundrepo.Message{}, apperr.NotFound("message not found")
}

func (r *fakeMessageReader) GetByProviderMessageID(_ context.Context, provider, providerMessageID string) (outboundrepo.Message, error) {
	msg, ok := r.messages[provider+"/"+providerMessageID]
	if !ok {
		return outboundrepo.Message{}, apperr.NotFound("message not found")
	}
	return msg, nil
}

func (r *fakeMessageReader) MarkSent(context.Context, uuid.UUID, string, string, time.Time) (bool, error) {
	return false, nil
}

func (r *fakeMessageReader) MarkFailed(context.Context, uuid.UUID, string) (bool, error) {
	return false, nil
}

func (r *fakeMessageReader) ListQueued(context.Context, int) ([]outboundrepo.Message, error) {
	return nil, nil
}

func (r *fakeMessageReader) WithQuerier(db.Querier) outboundrepo.Repository { return r }

func TestStatusProofTypeMapping(t *testing.T) {
	cases := []struct {
		status string
		want   string
	}{
		{"sent", repository.TypeSent},
		{"delivered", repository.TypeDelivered},
		{"DELIVERED", repository.TypeDelivered},
		{" read ", repository.TypeRead},
		{"replied", repository.TypeReplied},
		{"queued", ""},
		{"", ""},
	}

	for _, tc := range cases {
		if got := statusProofType(tc.status); got != tc.want {
			t.Errorf("statusProofType(%q) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestStopsClockExcludesSent(t *testing.T) {
	if repository.StopsClock(repository.TypeSent) {
		t.Fatal("SENT must not count as contact proof")
	}
	for _, proofType := range []string{repository.TypeDelivered, repository.TypeRead, repository.TypeReplied, repository.TypeInbound} {
		if !repository.StopsClock(proofType) {
			t.Errorf("%s must count as contact proof", proofType)
		}
	}
}

func TestHandleStatusIgnoresUnknownStatus(t *testing.T) {
	svc := NewService(nil, newFakeProofRepo(), nil, &fakeMessageReader{}, nil, nil, nil, logger.New("development"))

	result, err := svc.HandleStatus(context.Background(), StatusParams{
		Provider:          "twilio",
		ProviderMessageID: "SM123",
		Status:            "undeliverable_maybe",
	})
	if err != nil {
		t.Fatalf("HandleStatus returned error: %v", err)
	}
	if result.Ignored != "unknown_status" || result.Recorded {
		t.Fatalf("expected unknown_status ignore, got %+v", result)
	}
}

func TestHandleStatusIgnoresUnknownMessage(t *testing.T) {
	svc := NewService(nil, newFakeProofRepo(), nil, &fakeMessageReader{}, nil, nil, nil, logger.New("development"))

	result, err := svc.HandleStatus(context.Background(), StatusParams{
		Provider:          "twilio",
		ProviderMessageID: "SM-never-sent",
		Status:            "delivered",
	})
	if err != nil {
		t.Fatalf("HandleStatus returned error: %v", err)
	}
	if result.Ignored != "unknown_message" || result.Recorded {
		t.Fatalf("expected unknown_message ignore, got %+v", result)
	}
}

func TestHandleStatusDuplicateReportsOriginalProofWithoutSecondStop(t *testing.T) {
	leadID := uuid.New()
	workspaceID := uuid.New()
	msgID := uuid.New()

	msgs := &fakeMessageReader{messages: map[string]outboundrepo.Message{
		"twilio/SM42": {ID: msgID, WorkspaceID: workspaceID, LeadID: leadID, Status: outboundrepo.StatusSent},
	}}

	audit := &fakeAudit{}
	slaStore := newFakeSLAStore()
	slaSvc := slaservice.New(slaStore, audit, logger.New("development"))

	now := time.Now().UTC()
	if _, err := slaStore.Create(context.Background(), leadID, now, now.Add(30*time.Minute)); err != nil {
		t.Fatalf("seed clock: %v", err)
	}

	svc := NewService(testTx, newFakeProofRepo(), nil, msgs, slaSvc, nil, audit, logger.New("development"))

	params := StatusParams{
		Provider:          "twilio",
		ProviderMessageID: "SM42",
		Status:            "delivered",
		OccurredAt:        now,
	}

	first, err := svc.HandleStatus(context.Background(), params)
	if err != nil {
		t.Fatalf("first HandleStatus returned error: %v", err)
	}
	if !first.Recorded || !first.SLAStopped {
		t.Fatalf("expected fresh record with clock stop, got %+v", first)
	}
	if first.ProofEventID == nil || first.LeadID == nil || *first.LeadID != leadID {
		t.Fatalf("expected proof and lead ids on the result, got %+v", first)
	}

	second, err := svc.HandleStatus(context.Background(), params)
	if err != nil {
		t.Fatalf("second HandleStatus returned error: %v", err)
	}
	if !second.Reused || second.Recorded || second.SLAStopped {
		t.Fatalf("expected pure reuse, got %+v", second)
	}
	if second.ProofEventID == nil || *second.ProofEventID != *first.ProofEventID {
		t.Fatal("redelivery must report the original proof event id")
	}
	if audit.countType(eventlog.TypeSLAStopped) != 1 {
		t.Fatalf("expected one sla_stopped entry, got %d", audit.countType(eventlog.TypeSLAStopped))
	}
}

func TestRecordSentDeduplicatesRedelivery(t *testing.T) {
	repo := newFakeProofRepo()
	svc := NewService(nil, repo, nil, &fakeMessageReader{}, nil, nil, nil, logger.New("development"))

	leadID := uuid.New()
	at := time.Now().UTC()

	if err := svc.RecordSent(context.Background(), leadID, "gowa", "msg-1", at); err != nil {
		t.Fatalf("RecordSent returned error: %v", err)
	}
	if err := svc.RecordSent(context.Background(), leadID, "gowa", "msg-1", at); err != nil {
		t.Fatalf("second RecordSent returned error: %v", err)
	}

	events, _ := repo.ListByLead(context.Background(), leadID)
	if len(events) != 1 {
		t.Fatalf("expected one SENT proof, got %d", len(events))
	}
	if events[0].Type != repository.TypeSent {
		t.Fatalf("expected SENT proof, got %s", events[0].Type)
	}
}
