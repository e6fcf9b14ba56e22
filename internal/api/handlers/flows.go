package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/haven-automation/haven-hub/internal/core/flow"
	"github.com/haven-automation/haven-hub/internal/websocket"
	apperrors "github.com/haven-automation/haven-hub/pkg/errors"
	"github.com/haven-automation/haven-hub/pkg/utils"
)

// GetDomains lists the integration domains that can be configured
func (h *Handlers) GetDomains(c *gin.Context) {
	utils.SendSuccess(c, gin.H{"domains": h.flows.Domains()})
}

// StartFlow begins a config flow for a domain
func (h *Handlers) StartFlow(c *gin.Context) {
	var req struct {
		Domain string `json:"domain" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Wrap(apperrors.ErrBadRequest, err))
		return
	}

	result, err := h.flows.Init(c.Request.Context(), req.Domain, flow.KindUser, "")
	if err != nil {
		c.Error(apperrors.Wrap(apperrors.ErrBadRequest, err))
		return
	}
	h.wsHub.BroadcastToAll(websocket.FlowProgressMessage(result.FlowID, string(result.Type), result.StepID))
	utils.SendCreated(c, result)
}

// ConfigureFlow advances a flow with user input
func (h *Handlers) ConfigureFlow(c *gin.Context) {
	var input map[string]interface{}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(apperrors.Wrap(apperrors.ErrBadRequest, err))
		return
	}

	result, err := h.flows.Configure(c.Request.Context(), c.Param("flow_id"), input)
	if err != nil {
		if errors.Is(err, flow.ErrFlowNotFound) {
			c.Error(apperrors.Wrap(apperrors.ErrFlowNotFound, err))
			return
		}
		c.Error(apperrors.Wrap(apperrors.ErrBadRequest, err))
		return
	}
	h.wsHub.BroadcastToAll(websocket.FlowProgressMessage(result.FlowID, string(result.Type), result.StepID))
	utils.SendSuccess(c, result)
}

// AbortFlow discards an in-progress flow
func (h *Handlers) AbortFlow(c *gin.Context) {
	if err := h.flows.AbortFlow(c.Param("flow_id")); err != nil {
		c.Error(apperrors.Wrap(apperrors.ErrFlowNotFound, err))
		return
	}
	utils.SendSuccess(c, gin.H{"aborted": c.Param("flow_id")})
}

// GetFlows lists in-progress flows
func (h *Handlers) GetFlows(c *gin.Context) {
	flows := h.flows.InProgress()
	utils.SendSuccessWithMeta(c, flows, gin.H{"count": len(flows)})
}
