// Package sla tracks the first-contact clock: started at ingestion, stopped
// by the first contact proof, breached when the deadline passes first.
package sla

import (
	"leadpulse_backend/internal/eventlog"
	apphttp "leadpulse_backend/internal/http"
	"leadpulse_backend/internal/sla/handler"
	"leadpulse_backend/internal/sla/repository"
	"leadpulse_backend/internal/sla/service"
	"leadpulse_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	Service *service.Service
	handler *handler.HTTPHandler
}

func NewModule(pool *pgxpool.Pool, audit eventlog.Log, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, audit, log)

	return &Module{
		Service: svc,
		handler: handler.NewHTTPHandler(svc),
	}
}

func (m *Module) Name() string { return "sla" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/sla"))
}
