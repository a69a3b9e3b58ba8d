package handler

import (
	"net/http"

	"leadpulse_backend/internal/outbound/service"
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
	rg.POST("/:id/dispatch", h.DispatchOne)
	rg.POST("/dispatch", h.DispatchQueued)
}

// DispatchOne retries delivery of one message. Safe to call repeatedly; only
// a QUEUED message is actually sent.
func (h *HTTPHandler) DispatchOne(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid message id"))
		return
	}

	res, err := h.svc.DispatchOne(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"result": res.Result, "reason": res.Reason})
}

// DispatchQueued drains the queued backlog once.
func (h *HTTPHandler) DispatchQueued(c *gin.Context) {
	res, err := h.svc.DispatchQueued(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusOK, gin.H{
		"processed": res.Processed,
		"sent":      res.Sent,
		"failed":    res.Failed,
	})
}
