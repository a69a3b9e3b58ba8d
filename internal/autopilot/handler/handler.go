package handler

import (
	"net/http"
	"time"

	"leadpulse_backend/internal/autopilot/service"
	"leadpulse_backend/internal/autopilot/transport"
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
	svc *service.Service
	val *validator.Validator
}

func NewHTTPHandler(svc *service.Service, val *validator.Validator) *HTTPHandler {
	return &HTTPHandler{svc: svc, val: val}
}

func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/reply", h.Reply)
	rg.GET("/runs/:leadId", h.GetRun)
	rg.POST("/runs/:leadId/scenario", h.SwitchScenario)
}

func (h *HTTPHandler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/scenarios", h.CreateScenario)
	rg.GET("/scenarios", h.ListScenarios)
	rg.GET("/scenarios/:id", h.GetScenario)
	rg.PUT("/scenarios/:id", h.UpdateScenario)
	rg.DELETE("/scenarios/:id", h.DeleteScenario)
	rg.POST("/scenarios/:id/default", h.SetDefaultScenario)
}

// Reply injects an inbound reply for a known lead. It follows the same path
// as the provider webhook, including proof dedup, so repeated calls with the
// same text still advance the run once per message.
func (h *HTTPHandler) Reply(c *gin.Context) {
	var req transport.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.ProcessReply(c.Request.Context(), service.ReplyRequest{
		LeadID:            req.LeadID,
		Text:              req.Text,
		Provider:          "manual",
		ProviderMessageID: "manual-" + uuid.NewString(),
		OccurredAt:        time.Now().UTC(),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{
		"leadId": req.LeadID,
		"autopilot": gin.H{
			"status":  result.Run.Status,
			"node":    result.Run.Node,
			"answers": result.Run.Answers,
		},
		"queuedMessage":  result.QueuedMessageID,
		"messageBlocked": result.MessageBlocked,
		"reused":         result.Reused,
		"advanced":       result.Advanced,
		"handedOver":     result.HandedOver,
		"slaStopped":     result.SLAStopped,
	})
}

func (h *HTTPHandler) GetRun(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid lead id"))
		return
	}

	run, scenario, err := h.svc.GetRun(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"run": run, "scenario": scenario})
}

func (h *HTTPHandler) SwitchScenario(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid lead id"))
		return
	}

	var req transport.SwitchScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	run, err := h.svc.SwitchScenario(c.Request.Context(), leadID, req.ScenarioID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"run": run})
}

func (h *HTTPHandler) CreateScenario(c *gin.Context) {
	var req transport.ScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	scenario, err := h.svc.CreateScenario(c.Request.Context(), req.ToParams())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, scenario)
}

func (h *HTTPHandler) ListScenarios(c *gin.Context) {
	workspaceID, err := uuid.Parse(c.Query("workspaceId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("workspaceId query parameter is required"))
		return
	}

	scenarios, err := h.svc.ListScenarios(c.Request.Context(), workspaceID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": scenarios})
}

func (h *HTTPHandler) GetScenario(c *gin.Context) {
	workspaceID, id, ok := h.scenarioIDs(c)
	if !ok {
		return
	}

	scenario, err := h.svc.GetScenario(c.Request.Context(), workspaceID, id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, scenario)
}

func (h *HTTPHandler) UpdateScenario(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid scenario id"))
		return
	}

	var req transport.ScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	scenario, err := h.svc.UpdateScenario(c.Request.Context(), req.WorkspaceID, id, req.ToParams())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, scenario)
}

func (h *HTTPHandler) DeleteScenario(c *gin.Context) {
	workspaceID, id, ok := h.scenarioIDs(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteScenario(c.Request.Context(), workspaceID, id); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) SetDefaultScenario(c *gin.Context) {
	workspaceID, id, ok := h.scenarioIDs(c)
	if !ok {
		return
	}

	if err := h.svc.SetDefaultScenario(c.Request.Context(), workspaceID, id); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"default": id})
}

func (h *HTTPHandler) scenarioIDs(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid scenario id"))
		return uuid.Nil, uuid.Nil, false
	}
	workspaceID, err := uuid.Parse(c.Query("workspaceId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("workspaceId query parameter is required"))
		return uuid.Nil, uuid.Nil, false
	}
	return workspaceID, id, true
}
