// Package autopilot runs the WhatsApp qualification conversation: one run
// per lead walks a scenario's questions, records answers and hands the lead
// to a human once the question budget is spent.
package autopilot

import (
	"context"

	"leadpulse_backend/internal/autopilot/handler"
	"leadpulse_backend/internal/autopilot/planner"
	"leadpulse_backend/internal/autopilot/repository"
	"leadpulse_backend/internal/autopilot/service"
	"leadpulse_backend/internal/config"
	"leadpulse_backend/internal/eventlog"
	apphttp "leadpulse_backend/internal/http"
	leadsrepo "leadpulse_backend/internal/leads/repository"
	outboundsvc "leadpulse_backend/internal/outbound/service"
	proofrepo "leadpulse_backend/internal/proof/repository"
	slaservice "leadpulse_backend/internal/sla/service"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/events"
	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	Service    *service.Service
	Repository repository.Repository
	handler    *handler.HTTPHandler
}

func NewModule(
	ctx context.Context,
	cfg *config.Config,
	pool *pgxpool.Pool,
	leads leadsrepo.Repository,
	proofs proofrepo.Repository,
	sla *slaservice.Service,
	audit eventlog.Log,
	outbound *outboundsvc.Service,
	bus events.Bus,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	repo := repository.NewPostgresRepository(pool)
	rules := planner.NewRulesPlanner()

	var ai planner.Planner
	if cfg.GeminiAPIKey != "" {
		aiPlanner, err := planner.NewAIPlanner(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, rules, log)
		if err != nil {
			log.Error("ai planner unavailable, scenarios in AI mode fall back to rules", "error", err)
		} else {
			ai = aiPlanner
		}
	}

	svc := service.NewService(db.PoolRunner(pool), repo, leads, proofs, sla, audit, outbound, rules, ai, bus, log)

	return &Module{
		Service:    svc,
		Repository: repo,
		handler:    handler.NewHTTPHandler(svc, val),
	}
}

func (m *Module) Name() string { return "autopilot" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/autopilot"))
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/autopilot"))
}
