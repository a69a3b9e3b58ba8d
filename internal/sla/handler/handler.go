package handler

import (
	"time"

	"leadpulse_backend/internal/sla/service"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type HTTPHandler struct {
	svc *service.Service
}

func NewHTTPHandler(svc *service.Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:leadId", h.GetState)
	rg.POST("/sweep", h.Sweep)
}

func (h *HTTPHandler) GetState(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid lead id"))
		return
	}

	state, err := h.svc.GetState(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, state)
}

// Sweep runs one breach pass immediately. The background sweeper makes this
// redundant in steady state; it exists for operations and tests.
func (h *HTTPHandler) Sweep(c *gin.Context) {
	result, err := h.svc.BreachSweep(c.Request.Context(), time.Now().UTC())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"processed": result.Processed, "breached": result.Breached})
}
