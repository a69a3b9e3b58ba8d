package scheduler

import (
	"context"
	"testing"
	"time"

	"leadpulse_backend/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func TestScheduleBreachCheckEnqueuesAtDeadline(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		RedisURL:   "redis://" + mr.Addr(),
		AsynqQueue: "leadpulse",
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	leadID := uuid.New()
	runAt := time.Now().UTC().Add(30 * time.Minute)

	if err := client.ScheduleBreachCheck(context.Background(), leadID, runAt); err != nil {
		t.Fatalf("ScheduleBreachCheck returned error: %v", err)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer func() {
		_ = inspector.Close()
	}()

	tasks, err := inspector.ListScheduledTasks("leadpulse")
	if err != nil {
		t.Fatalf("ListScheduledTasks returned error: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one scheduled task, got %d", len(tasks))
	}
	if tasks[0].Type != TaskSLABreachCheck {
		t.Fatalf("expected %s task, got %s", TaskSLABreachCheck, tasks[0].Type)
	}

	payload, err := ParseSLABreachCheckPayload(asynq.NewTask(tasks[0].Type, tasks[0].Payload))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.LeadID != leadID.String() {
		t.Fatalf("expected lead %s in payload, got %s", leadID, payload.LeadID)
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(&config.Config{}); err == nil {
		t.Fatal("expected error without redis url")
	}
}

func TestBreachCheckPayloadRoundTrip(t *testing.T) {
	leadID := uuid.New()
	task, err := NewSLABreachCheckTask(SLABreachCheckPayload{
		LeadID:     leadID.String(),
		DeadlineAt: "2026-08-29T10:30:00Z",
	})
	if err != nil {
		t.Fatalf("NewSLABreachCheckTask returned error: %v", err)
	}
	if task.Type() != TaskSLABreachCheck {
		t.Fatalf("unexpected task type %s", task.Type())
	}

	payload, err := ParseSLABreachCheckPayload(task)
	if err != nil {
		t.Fatalf("ParseSLABreachCheckPayload returned error: %v", err)
	}
	if payload.LeadID != leadID.String() || payload.DeadlineAt != "2026-08-29T10:30:00Z" {
		t.Fatalf("payload did not round trip: %+v", payload)
	}
}

func TestRedisClientOptParsesURL(t *testing.T) {
	opt, err := redisClientOpt("redis://:hunter2@redis.internal:6380/2")
	if err != nil {
		t.Fatalf("redisClientOpt returned error: %v", err)
	}
	if opt.Addr != "redis.internal:6380" {
		t.Fatalf("unexpected addr %s", opt.Addr)
	}
	if opt.Password != "hunter2" {
		t.Fatalf("unexpected password %s", opt.Password)
	}
	if opt.DB != 2 {
		t.Fatalf("unexpected db %d", opt.DB)
	}

	if _, err := redisClientOpt("not a url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}
