package handler

import (
	"net/http"
	"strings"

	"leadpulse_backend/internal/leads/service"
	"leadpulse_backend/internal/leads/transport"
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

const maxIdempotencyKeyLength = 200

type HTTPHandler struct {
	svc *service.Service
	val *validator.Validator
}

func NewHTTPHandler(svc *service.Service, val *validator.Validator) *HTTPHandler {
	return &HTTPHandler{svc: svc, val: val}
}

func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Ingest)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/timeline", h.Timeline)
	rg.DELETE("/:id", h.Delete)
}

// Ingest accepts a new lead. The Idempotency-Key header is mandatory; a
// retry with the same key returns the original response.
func (h *HTTPHandler) Ingest(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if key == "" {
		httpkit.HandleError(c, apperr.BadRequest("Idempotency-Key header is required"))
		return
	}
	if len(key) > maxIdempotencyKeyLength {
		httpkit.HandleError(c, apperr.BadRequest("Idempotency-Key header is too long"))
		return
	}

	var req transport.IngestLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.Ingest(c.Request.Context(), service.IngestParams{
		WorkspaceID:    req.WorkspaceID,
		Name:           req.Name,
		Phone:          req.Phone,
		Email:          req.Email,
		Source:         req.Source,
		TargetMinutes:  req.TargetMinutes,
		IdempotencyKey: key,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	c.Data(result.StatusCode, "application/json; charset=utf-8", result.Body)
}

func (h *HTTPHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid lead id"))
		return
	}

	lead, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, lead)
}

func (h *HTTPHandler) Timeline(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid lead id"))
		return
	}

	entries, err := h.svc.Timeline(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": entries})
}

func (h *HTTPHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid lead id"))
		return
	}
	workspaceID, err := uuid.Parse(c.Query("workspaceId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("workspaceId query parameter is required"))
		return
	}

	if err := h.svc.Delete(c.Request.Context(), workspaceID, id); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}
