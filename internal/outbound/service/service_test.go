package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadpulse_backend/internal/eventlog"
	"leadpulse_backend/internal/outbound/provider"
	"leadpulse_backend/internal/outbound/repository"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/logger"

	"github.com/google/uuid"
)

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

type fakeMessageRepo struct {
	messages map[uuid.UUID]repository.Message
	// preSend flips the row out of QUEUED just before MarkSent, simulating
	// a racing dispatcher.
	raceOnMarkSent bool
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[uuid.UUID]repository.Message)}
}

func (r *fakeMessageRepo) Create(_ context.Context, params repository.CreateParams) (repository.Message, error) {
	msg := repository.Message{
		ID:          uuid.New(),
		WorkspaceID: params.WorkspaceID,
		LeadID:      params.LeadID,
		Status:      repository.StatusQueued,
		Channel:     repository.ChannelWhatsApp,
		ToPhone:     params.ToPhone,
		Body:        params.Body,
		CreatedAt:   time.Now().UTC(),
	}
	r.messages[msg.ID] = msg
	return msg, nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id uuid.UUID) (repository.Message, error) {
	msg, ok := r.messages[id]
	if !ok {
		return repository.Message{}, apperr.NotFound("message not found")
	}
	return msg, nil
}

func (r *fakeMessageRepo) GetByProviderMessageID(_ context.Context, providerName, providerMessageID string) (repository.Message, error) {
	for _, msg := range r.messages {
		if msg.Provider != nil && *msg.Provider == providerName &&
			msg.ProviderMessageID != nil && *msg.ProviderMessageID == providerMessageID {
			return msg, nil
		}
	}
	return repository.Message{}, apperr.NotFound("message not found")
}

func (r *fakeMessageRepo) MarkSent(_ context.Context, id uuid.UUID, providerName, providerMessageID string, sentAt time.Time) (bool, error) {
	msg := r.messages[id]
	if r.raceOnMarkSent {
		msg.Status = repository.StatusSent
		r.messages[id] = msg
		r.raceOnMarkSent = false
	}
	if msg.Status != repository.StatusQueued {
		return false, nil
	}
	msg.Status = repository.StatusSent
	msg.Provider = &providerName
	msg.ProviderMessageID = &providerMessageID
	msg.SentAt = &sentAt
	r.messages[id] = msg
	return true, nil
}

func (r *fakeMessageRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	msg := r.messages[id]
	if msg.Status != repository.StatusQueued {
		return false, nil
	}
	msg.Status = repository.StatusFailed
	msg.FailReason = &reason
	r.messages[id] = msg
	return true, nil
}

func (r *fakeMessageRepo) ListQueued(_ context.Context, limit int) ([]repository.Message, error) {
	var queued []repository.Message
	for _, msg := range r.messages {
		if msg.Status == repository.StatusQueued {
			queued = append(queued, msg)
		}
		if len(queued) == limit {
			break
		}
	}
	return queued, nil
}

func (r *fakeMessageRepo) WithQuerier(db.Querier) repository.Repository { return r }

type fakeSender struct {
	err   error
	calls int
}

func (s *fakeSender) Name() string { return "fake" }

func (s *fakeSender) Send(_ context.Context, _, _ string) (provider.SendResult, error) {
	s.calls++
	if s.err != nil {
		return provider.SendResult{}, s.err
	}
	return provider.SendResult{
		Provider:          "fake",
		ProviderMessageID: "fake-" + uuid.NewString(),
		SentAt:            time.Now().UTC(),
	}, nil
}

type fakeProofRecorder struct {
	calls int
}

func (p *fakeProofRecorder) RecordSent(context.Context, uuid.UUID, string, string, time.Time) error {
	p.calls++
	return nil
}

func newTestService(repo repository.Repository, sender provider.Sender, audit eventlog.Log) *Service {
	return NewService(repo, sender, audit, logger.New("development"), 5*time.Second)
}

func queueTestMessage(t *testing.T, svc *Service, toPhone string) repository.Message {
	t.Helper()
	msg, err := svc.Queue(context.Background(), repository.CreateParams{
		WorkspaceID: uuid.New(),
		LeadID:      uuid.New(),
		ToPhone:     toPhone,
		Body:        "What is your budget?",
	})
	if err != nil {
		t.Fatalf("Queue returned error: %v", err)
	}
	return msg
}

func TestDispatchOneSendsAndRecordsProof(t *testing.T) {
	repo := newFakeMessageRepo()
	sender := &fakeSender{}
	audit := &fakeAudit{}
	svc := newTestService(repo, sender, audit)
	proofs := &fakeProofRecorder{}
	svc.SetProofRecorder(proofs)

	msg := queueTestMessage(t, svc, "+31612345678")

	res, err := svc.DispatchOne(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("DispatchOne returned error: %v", err)
	}
	if res.Result != ResultSent {
		t.Fatalf("expected sent, got %+v", res)
	}

	stored, _ := repo.GetByID(context.Background(), msg.ID)
	if stored.Status != repository.StatusSent {
		t.Fatalf("expected SENT status, got %s", stored.Status)
	}
	if stored.ProviderMessageID == nil {
		t.Fatal("expected provider message id to be stored")
	}
	if proofs.calls != 1 {
		t.Fatalf("expected one SENT proof, got %d", proofs.calls)
	}
	if audit.countType(eventlog.TypeMessageSent) != 1 {
		t.Fatalf("expected one message_sent entry, got %d", audit.countType(eventlog.TypeMessageSent))
	}
	if audit.countType(eventlog.TypeAutoDispatchAttempted) != 1 {
		t.Fatalf("expected one dispatch attempt entry, got %d", audit.countType(eventlog.TypeAutoDispatchAttempted))
	}
}

func TestDispatchOneFailsWithoutUsablePhone(t *testing.T) {
	repo := newFakeMessageRepo()
	sender := &fakeSender{}
	audit := &fakeAudit{}
	svc := newTestService(repo, sender, audit)

	msg := queueTestMessage(t, svc, "")

	res, err := svc.DispatchOne(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("DispatchOne returned error: %v", err)
	}
	if res.Result != ResultFailed || res.Reason != "missing_toPhone" {
		t.Fatalf("expected missing_toPhone failure, got %+v", res)
	}
	if sender.calls != 0 {
		t.Fatal("provider must not be called without a usable phone")
	}

	stored, _ := repo.GetByID(context.Background(), msg.ID)
	if stored.Status != repository.StatusFailed {
		t.Fatalf("expected FAILED status, got %s", stored.Status)
	}
	if audit.countType(eventlog.TypeMessageFailed) != 1 {
		t.Fatalf("expected one message_failed entry, got %d", audit.countType(eventlog.TypeMessageFailed))
	}
}

func TestDispatchOneRecordsProviderError(t *testing.T) {
	repo := newFakeMessageRepo()
	sender := &fakeSender{err: errors.New("connection refused")}
	audit := &fakeAudit{}
	svc := newTestService(repo, sender, audit)

	msg := queueTestMessage(t, svc, "+31612345678")

	res, err := svc.DispatchOne(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("DispatchOne returned error: %v", err)
	}
	if res.Result != ResultFailed {
		t.Fatalf("expected failed, got %+v", res)
	}

	stored, _ := repo.GetByID(context.Background(), msg.ID)
	if stored.FailReason == nil || *stored.FailReason != "provider_error: connection refused" {
		t.Fatalf("expected provider_error reason, got %v", stored.FailReason)
	}
}

func TestDispatchOneSkipsNonQueuedWithoutAttemptLog(t *testing.T) {
	repo := newFakeMessageRepo()
	sender := &fakeSender{}
	audit := &fakeAudit{}
	svc := newTestService(repo, sender, audit)

	msg := queueTestMessage(t, svc, "+31612345678")
	if _, err := svc.DispatchOne(context.Background(), msg.ID); err != nil {
		t.Fatalf("first dispatch returned error: %v", err)
	}

	res, err := svc.DispatchOne(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("second dispatch returned error: %v", err)
	}
	if res.Result != ResultSkipped || res.Reason != "not_queued" {
		t.Fatalf("expected not_queued skip, got %+v", res)
	}
	if sender.calls != 1 {
		t.Fatalf("provider must be called exactly once, got %d", sender.calls)
	}
	if audit.countType(eventlog.TypeAutoDispatchAttempted) != 1 {
		t.Fatalf("skips must not log attempts, got %d", audit.countType(eventlog.TypeAutoDispatchAttempted))
	}
}

func TestDispatchOneRaceHasSingleWinner(t *testing.T) {
	repo := newFakeMessageRepo()
	sender := &fakeSender{}
	audit := &fakeAudit{}
	svc := newTestService(repo, sender, audit)
	proofs := &fakeProofRecorder{}
	svc.SetProofRecorder(proofs)

	msg := queueTestMessage(t, svc, "+31612345678")
	repo.raceOnMarkSent = true

	res, err := svc.DispatchOne(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("DispatchOne returned error: %v", err)
	}
	if res.Result != ResultSkipped || res.Reason != "raced" {
		t.Fatalf("expected raced skip, got %+v", res)
	}
	if proofs.calls != 0 {
		t.Fatal("losing dispatcher must not record a proof")
	}
	if audit.countType(eventlog.TypeMessageSent) != 0 {
		t.Fatal("losing dispatcher must not log message_sent")
	}
}

func TestDispatchOneSkipsUnknownMessage(t *testing.T) {
	repo := newFakeMessageRepo()
	sender := &fakeSender{}
	audit := &fakeAudit{}
	svc := newTestService(repo, sender, audit)

	res, err := svc.DispatchOne(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("DispatchOne returned error: %v", err)
	}
	if res.Result != ResultSkipped || res.Reason != "not_found" {
		t.Fatalf("expected not_found skip, got %+v", res)
	}
	if sender.calls != 0 {
		t.Fatal("unknown message must not reach the provider")
	}
}

func TestDispatchQueuedDrainsBacklog(t *testing.T) {
	repo := newFakeMessageRepo()
	sender := &fakeSender{}
	audit := &fakeAudit{}
	svc := newTestService(repo, sender, audit)

	queueTestMessage(t, svc, "+31612345678")
	queueTestMessage(t, svc, "+31687654321")
	queueTestMessage(t, svc, "")

	result, err := svc.DispatchQueued(context.Background())
	if err != nil {
		t.Fatalf("DispatchQueued returned error: %v", err)
	}
	if result.Processed != 3 || result.Sent != 2 || result.Failed != 1 {
		t.Fatalf("expected 3 processed, 2 sent, 1 failed, got %+v", result)
	}

	leftover, _ := repo.ListQueued(context.Background(), 10)
	if len(leftover) != 0 {
		t.Fatalf("expected empty backlog, got %d queued", len(leftover))
	}
}
