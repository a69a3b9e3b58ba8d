package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadpulse_backend/internal/config"
	slaservice "leadpulse_backend/internal/sla/service"
	"leadpulse_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	sla    *slaservice.Service
	log    *logger.Logger
}

func NewWorker(cfg *config.Config, sla *slaservice.Service, log *logger.Logger) (*Worker, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.AsynqQueue
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.AsynqConcurrency
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		sla:    sla,
		log:    log,
	}

	mux.HandleFunc(TaskSLABreachCheck, w.handleSLABreachCheck)

	return w, nil
}

func (w *Worker) handleSLABreachCheck(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSLABreachCheckPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	breached, err := w.sla.CheckBreach(ctx, leadID, time.Now().UTC())
	if err != nil {
		return err
	}

	if breached {
		w.log.Info("sla breach recorded",
			"lead_id", leadID.String(),
			"deadline_at", payload.DeadlineAt,
		)
	}

	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
