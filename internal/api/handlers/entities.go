package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haven-automation/haven-hub/internal/core/types"
	apperrors "github.com/haven-automation/haven-hub/pkg/errors"
	"github.com/haven-automation/haven-hub/pkg/utils"
)

// GetEntities returns entities, optionally filtered by source, type,
// entry or a search query
func (h *Handlers) GetEntities(c *gin.Context) {
	var result []types.HavenEntity

	switch {
	case c.Query("source") != "":
		result = h.entities.ListBySource(types.HavenSourceType(c.Query("source")))
	case c.Query("type") != "":
		result = h.entities.ListByType(types.HavenEntityType(c.Query("type")))
	case c.Query("entry_id") != "":
		result = h.entities.ListByEntry(c.Query("entry_id"))
	case c.Query("search") != "":
		result = h.entities.Search(c.Query("search"))
	default:
		result = h.entities.List()
	}

	utils.SendSuccessWithMeta(c, result, gin.H{"count": len(result)})
}

// GetEntity returns one entity by ID
func (h *Handlers) GetEntity(c *gin.Context) {
	entity, err := h.entities.Get(c.Param("id"))
	if err != nil {
		c.Error(apperrors.Wrap(apperrors.ErrEntityNotFound, err))
		return
	}
	utils.SendSuccess(c, entity)
}

// GetDevices lists the device-registry records entities are grouped under
func (h *Handlers) GetDevices(c *gin.Context) {
	devices := h.entities.ListDevices()
	utils.SendSuccessWithMeta(c, devices, gin.H{"count": len(devices)})
}

// ExecuteEntityAction runs a control action against an entity
func (h *Handlers) ExecuteEntityAction(c *gin.Context) {
	var req struct {
		Action     string                 `json:"action" binding:"required"`
		Parameters map[string]interface{} `json:"parameters"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Wrap(apperrors.ErrBadRequest, err))
		return
	}

	action := types.HavenControlAction{
		Action:     req.Action,
		Parameters: req.Parameters,
		EntityID:   c.Param("id"),
	}

	result, err := h.entities.ExecuteAction(c.Request.Context(), action)
	if err != nil {
		c.Error(apperrors.Wrap(apperrors.New(http.StatusBadGateway, "action failed"), err))
		return
	}

	if entity, getErr := h.entities.Get(action.EntityID); getErr == nil {
		h.metrics.ActionDuration.WithLabelValues(string(entity.GetSource())).Observe(result.Duration.Seconds())
	}

	utils.SendSuccess(c, result)
}
