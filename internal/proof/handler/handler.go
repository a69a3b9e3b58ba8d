package handler

import (
	"net/http"
	"time"

	"leadpulse_backend/internal/proof/service"
	"leadpulse_backend/internal/proof/transport"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/httpkit"
	"leadpulse_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request payload"
	msgValidationFailed = "validation failed"
)

type HTTPHandler struct {
	svc             *service.Service
	val             *validator.Validator
	defaultProvider string
}

func NewHTTPHandler(svc *service.Service, val *validator.Validator, defaultProvider string) *HTTPHandler {
	return &HTTPHandler{svc: svc, val: val, defaultProvider: defaultProvider}
}

// RegisterWebhookRoutes mounts the provider callbacks. These routes sit
// behind the webhook rate limiter, not the API limiter.
func (h *HTTPHandler) RegisterWebhookRoutes(rg *gin.RouterGroup) {
	rg.POST("/whatsapp/status", h.Status)
	rg.POST("/whatsapp/:workspaceId/inbound", h.Inbound)
}

func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:leadId", h.ListByLead)
}

// Status ingests a delivery status callback. Fresh records answer 201;
// redeliveries and statuses this system does not track answer 200, so
// providers stop retrying either way.
func (h *HTTPHandler) Status(c *gin.Context) {
	var req transport.StatusWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.HandleStatus(c.Request.Context(), service.StatusParams{
		Provider:          h.provider(req.Provider),
		ProviderMessageID: req.MessageID,
		Status:            req.Status,
		OccurredAt:        timestampOrNow(req.Timestamp),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	code := http.StatusOK
	if result.Recorded {
		code = http.StatusCreated
	}
	httpkit.JSON(c, code, gin.H{
		"proofEventId": result.ProofEventID,
		"leadId":       result.LeadID,
		"status":       req.Status,
		"recorded":     result.Recorded,
		"reused":       result.Reused,
		"ignored":      result.Ignored,
		"slaStopped":   result.SLAStopped,
	})
}

// Inbound ingests an inbound WhatsApp message for a workspace.
func (h *HTTPHandler) Inbound(c *gin.Context) {
	workspaceID, err := uuid.Parse(c.Param("workspaceId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid workspace id"))
		return
	}

	var req transport.InboundWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.HandleInbound(c.Request.Context(), workspaceID, service.InboundParams{
		Provider:          h.provider(req.Provider),
		ProviderMessageID: req.MessageID,
		FromPhone:         req.From,
		Text:              req.Text,
		OccurredAt:        timestampOrNow(req.Timestamp),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	code := http.StatusCreated
	if result.Reused {
		code = http.StatusOK
	}
	httpkit.JSON(c, code, gin.H{
		"matched":    result.Matched,
		"leadId":     result.LeadID,
		"reused":     result.Reused,
		"advanced":   result.Advanced,
		"handedOver": result.HandedOver,
		"slaStopped": result.SLAStopped,
	})
}

func (h *HTTPHandler) ListByLead(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid lead id"))
		return
	}

	events, err := h.svc.ListByLead(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": events})
}

func (h *HTTPHandler) provider(fromRequest string) string {
	if fromRequest != "" {
		return fromRequest
	}
	return h.defaultProvider
}

func timestampOrNow(t *time.Time) time.Time {
	if t != nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
