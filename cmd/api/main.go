package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadpulse_backend/internal/autopilot"
	"leadpulse_backend/internal/config"
	"leadpulse_backend/internal/eventlog"
	apphttp "leadpulse_backend/internal/http"
	"leadpulse_backend/internal/http/router"
	"leadpulse_backend/internal/leads"
	leadsrepo "leadpulse_backend/internal/leads/repository"
	"leadpulse_backend/internal/notifier"
	"leadpulse_backend/internal/outbound"
	"leadpulse_backend/internal/outbound/provider"
	"leadpulse_backend/internal/proof"
	proofrepo "leadpulse_backend/internal/proof/repository"
	"leadpulse_backend/internal/scheduler"
	"leadpulse_backend/internal/sla"
	"leadpulse_backend/internal/users"
	"leadpulse_backend/migrations"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/events"
	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	sender := newSender(cfg, log)
	log.Info("messaging provider initialized", "provider", sender.Name())

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	audit := eventlog.New(pool)
	leadsRepo := leadsrepo.NewPostgresRepository(pool)
	proofsRepo := proofrepo.NewPostgresRepository(pool)
	usersRepo := users.NewPostgresRepository(pool)

	slaModule := sla.NewModule(pool, audit, log)
	outboundModule := outbound.NewModule(pool, sender, audit, log, cfg.ProviderTimeout)
	autopilotModule := autopilot.NewModule(ctx, cfg, pool, leadsRepo, proofsRepo, slaModule.Service, audit, outboundModule.Service, eventBus, val, log)
	proofModule := proof.NewModule(pool, proofsRepo, leadsRepo, outboundModule.Repository, slaModule.Service, autopilotModule.Service, audit, val, log, cfg.MessagingProvider)
	leadsModule := leads.NewModule(pool, leadsRepo, slaModule.Service, autopilotModule.Service, audit, eventBus, val, log, cfg.SLATargetMinutes)

	// Every successful provider send becomes a SENT proof
	outboundModule.Service.SetProofRecorder(proofModule.Service)

	// Handover notifications for the assigned agent
	var emailSender *notifier.EmailSender
	if cfg.EmailEnabled {
		emailSender, err = notifier.NewEmailSender(cfg)
		if err != nil {
			log.Error("failed to initialize email sender", "error", err)
			panic("failed to initialize email sender: " + err.Error())
		}
	}
	notifierModule := notifier.NewModule(usersRepo, leadsRepo, autopilotModule.Repository, outboundModule.Service, audit, emailSender, log)
	notifierModule.Subscribe(eventBus)

	// Exact-deadline breach checks over Redis; the scheduler binary runs the
	// worker that consumes them.
	if cfg.RedisURL != "" {
		schedClient, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize breach scheduler client", "error", err)
		} else {
			defer func() {
				_ = schedClient.Close()
			}()
			leadsModule.Service.SetBreachScheduler(schedClient)
		}
	} else {
		log.Warn("REDIS_URL not configured; exact-deadline breach checks disabled, sweeps remain")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			leadsModule,
			slaModule,
			autopilotModule,
			outboundModule,
			proofModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
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
		return fmt.Errorf("%s: invalid retry attempts", name)
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
