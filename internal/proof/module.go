// Package proof records immutable delivery and contact facts from messaging
// providers and turns the first real contact into an SLA clock stop.
package proof

import (
	autopilotsvc "leadpulse_backend/internal/autopilot/service"
	"leadpulse_backend/internal/eventlog"
	apphttp "leadpulse_backend/internal/http"
	leadsrepo "leadpulse_backend/internal/leads/repository"
	outboundrepo "leadpulse_backend/internal/outbound/repository"
	"leadpulse_backend/internal/proof/handler"
	"leadpulse_backend/internal/proof/repository"
	"leadpulse_backend/internal/proof/service"
	slaservice "leadpulse_backend/internal/sla/service"
	"leadpulse_backend/platform/db"
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
	leads leadsrepo.Repository,
	messages outboundrepo.Repository,
	sla *slaservice.Service,
	autopilot *autopilotsvc.Service,
	audit eventlog.Log,
	val *validator.Validator,
	log *logger.Logger,
	defaultProvider string,
) *Module {
	svc := service.NewService(db.PoolRunner(pool), repo, leads, messages, sla, autopilot, audit, log)

	return &Module{
		Service:    svc,
		Repository: repo,
		handler:    handler.NewHTTPHandler(svc, val, defaultProvider),
	}
}

func (m *Module) Name() string { return "proof" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterWebhookRoutes(ctx.Webhooks)
	m.handler.RegisterRoutes(ctx.V1.Group("/proof"))
}
