package scheduler

import (
	"context"
	"time"

	outboundsvc "leadpulse_backend/internal/outbound/service"
	slaservice "leadpulse_backend/internal/sla/service"
	"leadpulse_backend/platform/logger"
)

// BreachSweeper periodically marks every expired running clock as breached.
// It backs up the exact-deadline tasks: a breach is recorded even when Redis
// was down at ingestion time.
type BreachSweeper struct {
	sla      *slaservice.Service
	interval time.Duration
	log      *logger.Logger
}

func NewBreachSweeper(sla *slaservice.Service, interval time.Duration, log *logger.Logger) *BreachSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &BreachSweeper{sla: sla, interval: interval, log: log}
}

func (s *BreachSweeper) Run(ctx context.Context) {
	if s == nil || s.sla == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		result, err := s.sla.BreachSweep(ctx, time.Now().UTC())
		if err != nil {
			s.log.Warn("breach sweep failed", "error", err)
			continue
		}
		if result.Breached > 0 {
			s.log.Info("breach sweep completed",
				"processed", result.Processed,
				"breached", result.Breached,
			)
		}
	}
}

// DispatchSweeper retries queued outbound messages left behind by failed or
// skipped inline dispatch attempts.
type DispatchSweeper struct {
	outbound *outboundsvc.Service
	interval time.Duration
	log      *logger.Logger
}

func NewDispatchSweeper(outbound *outboundsvc.Service, interval time.Duration, log *logger.Logger) *DispatchSweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &DispatchSweeper{outbound: outbound, interval: interval, log: log}
}

func (s *DispatchSweeper) Run(ctx context.Context) {
	if s == nil || s.outbound == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		result, err := s.outbound.DispatchQueued(ctx)
		if err != nil {
			s.log.Warn("dispatch sweep failed", "error", err)
			continue
		}
		if result.Sent > 0 || result.Failed > 0 {
			s.log.Info("dispatch sweep completed",
				"processed", result.Processed,
				"sent", result.Sent,
				"failed", result.Failed,
			)
		}
	}
}
