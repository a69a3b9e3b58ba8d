package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadpulse_backend/internal/config"
	"leadpulse_backend/internal/eventlog"
	leadsrepo "leadpulse_backend/internal/leads/repository"
	"leadpulse_backend/internal/outbound/provider"
	outboundrepo "leadpulse_backend/internal/outbound/repository"
	outboundsvc "leadpulse_backend/internal/outbound/service"
	proofrepo "leadpulse_backend/internal/proof/repository"
	proofservice "leadpulse_backend/internal/proof/service"
	"leadpulse_backend/internal/scheduler"
	slarepo "leadpulse_backend/internal/sla/repository"
	slaservice "leadpulse_backend/internal/sla/service"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	audit := eventlog.New(pool)

	slaSvc := slaservice.New(slarepo.New(pool), audit, log)

	sender := newSender(cfg, log)
	outboundRepo := outboundrepo.NewPostgresRepository(pool)
	outboundSvc := outboundsvc.NewService(outboundRepo, sender, audit, log, cfg.ProviderTimeout)

	// Sweep-dispatched sends record SENT proofs, same as the API binary.
	proofSvc := proofservice.NewService(db.PoolRunner(pool), proofrepo.NewPostgresRepository(pool),
		leadsrepo.NewPostgresRepository(pool), outboundRepo, slaSvc, nil, audit, log)
	outboundSvc.SetProofRecorder(proofSvc)

	// Periodic safety nets behind the exact-deadline tasks and inline sends.
	breachSweeper := scheduler.NewBreachSweeper(slaSvc, cfg.BreachSweepInterval, log)
	dispatchSweeper := scheduler.NewDispatchSweeper(outboundSvc, cfg.DispatchSweepInterval, log)

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		breachSweeper.Run(runCtx)
		return nil
	})
	g.Go(func() error {
		dispatchSweeper.Run(runCtx)
		return nil
	})

	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not configured; running sweeps only")
	} else {
		worker, err := scheduler.NewWorker(cfg, slaSvc, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
		g.Go(func() error {
			worker.Run(runCtx)
			return nil
		})
	}

	_ = g.Wait()
}

func newSender(cfg *config.Config, log *logger.Logger) provider.Sender {
	switch cfg.MessagingProvider {
	case config.ProviderGowa:
		return provider.NewGowaSender(cfg.GowaURL, cfg.GowaAPIKey, cfg.GowaDeviceID, cfg.ProviderTimeout, log)
	case config.ProviderTwilio:
		return provider.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.ProviderTimeout, log)
	default:
		return provider.NewStubSender(log)
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
