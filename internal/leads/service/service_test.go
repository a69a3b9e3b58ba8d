package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"leadpulse_backend/internal/eventlog"
	"leadpulse_backend/internal/leads/repository"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadRepo struct {
	leads map[uuid.UUID]repository.Lead
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{leads: make(map[uuid.UUID]repository.Lead)}
}

func (r *fakeLeadRepo) Create(_ context.Context, params repository.CreateParams) (repository.Lead, error) {
	lead := repository.Lead{
		ID:          uuid.New(),
		WorkspaceID: params.WorkspaceID,
		Name:        params.Name,
		Phone:       params.Phone,
		Email:       params.Email,
		Source:      params.Source,
		Status:      repository.StatusOpen,
	}
	r.leads[lead.ID] = lead
	return lead, nil
}

func (r *fakeLeadRepo) GetByID(_ context.Context, id uuid.UUID) (repository.Lead, error) {
	lead, ok := r.leads[id]
	if !ok {
		return repository.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func (r *fakeLeadRepo) FindOpenByPhone(context.Context, uuid.UUID, string) (repository.Lead, error) {
	return repository.Lead{}, apperr.NotFound("lead not found")
}

func (r *fakeLeadRepo) EnsureInboxLead(context.Context, uuid.UUID) (repository.Lead, error) {
	return repository.Lead{}, nil
}

func (r *fakeLeadRepo) EnsureWorkspace(context.Context, uuid.UUID, string) error { return nil }

func (r *fakeLeadRepo) Delete(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	delete(r.leads, id)
	return nil
}

func (r *fakeLeadRepo) WithQuerier(db.Querier) repository.Repository { return r }

type fakeIdemStore struct {
	records map[string]repository.IdempotencyRecord
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{records: make(map[string]repository.IdempotencyRecord)}
}

func (s *fakeIdemStore) Get(_ context.Context, workspaceID uuid.UUID, key string) (repository.IdempotencyRecord, bool, error) {
	rec, ok := s.records[workspaceID.String()+"/"+key]
	return rec, ok, nil
}

func (s *fakeIdemStore) Save(_ context.Context, workspaceID uuid.UUID, key string, statusCode int, body []byte) error {
	s.records[workspaceID.String()+"/"+key] = repository.IdempotencyRecord{
		StatusCode:   statusCode,
		ResponseBody: body,
		CreatedAt:    time.Now().UTC(),
	}
	return nil
}

func (s *fakeIdemStore) WithQuerier(db.Querier) repository.IdempotencyStore { return s }

type fakeAudit struct {
	entries []eventlog.Entry
}

func (a *fakeAudit) Append(_ context.Context, workspaceID uuid.UUID, leadID *uuid.UUID, eventType string, payload map[string]any) error {
	a.entries = append(a.entries, eventlog.Entry{WorkspaceID: workspaceID, LeadID: leadID, Type: eventType, Payload: payload})
	return nil
}

func (a *fakeAudit) ListByLead(_ context.Context, workspaceID, leadID uuid.UUID) ([]eventlog.Entry, error) {
	var out []eventlog.Entry
	for _, e := range a.entries {
		if e.WorkspaceID == workspaceID && e.LeadID != nil && *e.LeadID == leadID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *fakeAudit) WithQuerier(db.Querier) eventlog.Log { return a }

func TestIngestReplaysStoredResponseVerbatim(t *testing.T) {
	repo := newFakeLeadRepo()
	idem := newFakeIdemStore()
	svc := NewService(nil, repo, idem, nil, nil, &fakeAudit{}, nil, logger.New("development"), 30)

	workspaceID := uuid.New()
	leadID := uuid.New()
	stored := []byte(`{"leadId":"` + leadID.String() + `","sla":{"startedAt":"2026-08-29T10:00:00Z","deadlineAt":"2026-08-29T10:30:00Z"},"autopilot":{"runId":"` + uuid.NewString() + `","scenarioId":"` + uuid.NewString() + `","node":"q1"},"idempotency":{"reused":false}}`)
	if err := idem.Save(context.Background(), workspaceID, "req-1", http.StatusCreated, stored); err != nil {
		t.Fatalf("seed idempotency record: %v", err)
	}

	result, err := svc.Ingest(context.Background(), IngestParams{
		WorkspaceID:    workspaceID,
		Name:           "Another Name Entirely",
		IdempotencyKey: "req-1",
	})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	if !result.Reused {
		t.Fatal("expected replay to report reused")
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", result.StatusCode)
	}
	if len(repo.leads) != 0 {
		t.Fatal("replay must not create a lead")
	}

	var decoded struct {
		LeadID      uuid.UUID `json:"leadId"`
		SLA         struct {
			DeadlineAt time.Time `json:"deadlineAt"`
		} `json:"sla"`
		Idempotency struct {
			Reused bool `json:"reused"`
		} `json:"idempotency"`
	}
	if err := json.Unmarshal(result.Body, &decoded); err != nil {
		t.Fatalf("decode replayed body: %v", err)
	}
	if decoded.LeadID != leadID {
		t.Fatalf("replay changed the lead id: %s", decoded.LeadID)
	}
	if !decoded.Idempotency.Reused {
		t.Fatal("expected idempotency.reused to be flipped to true")
	}
}

func TestMarkReusedOnlyTouchesIdempotencyFlag(t *testing.T) {
	stored := []byte(`{"leadId":"abc","sla":{"deadlineAt":"2026-08-29T10:30:00Z"},"idempotency":{"reused":false}}`)

	body, err := markReused(stored)
	if err != nil {
		t.Fatalf("markReused returned error: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if string(decoded["leadId"]) != `"abc"` {
		t.Fatalf("leadId changed: %s", decoded["leadId"])
	}
	if string(decoded["sla"]) != `{"deadlineAt":"2026-08-29T10:30:00Z"}` {
		t.Fatalf("sla changed: %s", decoded["sla"])
	}
	if string(decoded["idempotency"]) != `{"reused":true}` {
		t.Fatalf("idempotency not flipped: %s", decoded["idempotency"])
	}
}

func TestTimelineScopesToLeadWorkspace(t *testing.T) {
	repo := newFakeLeadRepo()
	audit := &fakeAudit{}
	svc := NewService(nil, repo, newFakeIdemStore(), nil, nil, audit, nil, logger.New("development"), 30)

	lead, err := repo.Create(context.Background(), repository.CreateParams{WorkspaceID: uuid.New(), Name: "Jan"})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}

	if err := audit.Append(context.Background(), lead.WorkspaceID, &lead.ID, eventlog.TypeLeadReceived, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	otherLead := uuid.New()
	if err := audit.Append(context.Background(), lead.WorkspaceID, &otherLead, eventlog.TypeLeadReceived, nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := svc.Timeline(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("Timeline returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry for the lead, got %d", len(entries))
	}
}
