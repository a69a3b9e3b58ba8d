// Package outbound owns the outbound message ledger and delivery. Messages
// are queued inside the transaction that decided to send them and delivered
// after commit, so a crash between the two leaves a QUEUED row the sweep
// picks up.
package outbound

import (
	"time"

	"leadpulse_backend/internal/eventlog"
	apphttp "leadpulse_backend/internal/http"
	"leadpulse_backend/internal/outbound/handler"
	"leadpulse_backend/internal/outbound/provider"
	"leadpulse_backend/internal/outbound/repository"
	"leadpulse_backend/internal/outbound/service"
	"leadpulse_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	Service    *service.Service
	Repository repository.Repository
	handler    *handler.HTTPHandler
}

func NewModule(pool *pgxpool.Pool, sender provider.Sender, audit eventlog.Log, log *logger.Logger, timeout time.Duration) *Module {
	repo := repository.NewPostgresRepository(pool)
	svc := service.NewService(repo, sender, audit, log, timeout)

	return &Module{
		Service:    svc,
		Repository: repo,
		handler:    handler.NewHTTPHandler(svc),
	}
}

func (m *Module) Name() string { return "outbound" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/messages"))
}
