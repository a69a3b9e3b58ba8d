// Package leads owns lead intake: idempotent ingestion that creates the
// lead, its first-contact clock and its qualification run in one commit.
package leads

import (
	autopilotsvc "leadpulse_backend/internal/autopilot/service"
	"leadpulse_backend/internal/eventlog"
	apphttp "leadpulse_backend/internal/http"
	"leadpulse_backend/internal/leads/handler"
	"leadpulse_backend/internal/leads/repository"
	"leadpulse_backend/internal/leads/service"
	slaservice "leadpulse_backend/internal/sla/service"
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
	pool *pgxpool.Pool,
	repo repository.Repository,
	sla *slaservice.Service,
	autopilot *autopilotsvc.Service,
	audit eventlog.Log,
	bus events.Bus,
	val *validator.Validator,
	log *logger.Logger,
	targetMinutes int,
) *Module {
	idem := repository.NewPostgresIdempotencyStore(pool)
	svc := service.NewService(pool, repo, idem, sla, autopilot, audit, bus, log, targetMinutes)

	return &Module{
		Service:    svc,
		Repository: repo,
		handler:    handler.NewHTTPHandler(svc, val),
	}
}

func (m *Module) Name() string { return "leads" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/leads"))
}
