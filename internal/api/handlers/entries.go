package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/haven-automation/haven-hub/internal/core/entries"
	apperrors "github.com/haven-automation/haven-hub/pkg/errors"
	"github.com/haven-automation/haven-hub/pkg/utils"
)

// GetEntries lists config entries, optionally filtered by domain
func (h *Handlers) GetEntries(c *gin.Context) {
	var result []*entries.ConfigEntry
	if domain := c.Query("domain"); domain != "" {
		result = h.entries.ListByDomain(domain)
	} else {
		result = h.entries.List()
	}
	utils.SendSuccessWithMeta(c, result, gin.H{"count": len(result)})
}

// GetEntry returns one config entry
func (h *Handlers) GetEntry(c *gin.Context) {
	entry, err := h.entries.Get(c.Param("id"))
	if err != nil {
		c.Error(apperrors.Wrap(apperrors.ErrEntryNotFound, err))
		return
	}
	utils.SendSuccess(c, entry)
}

// ReloadEntry tears the entry down and sets it up again
func (h *Handlers) ReloadEntry(c *gin.Context) {
	id := c.Param("id")
	if err := h.entries.Reload(c.Request.Context(), id); err != nil {
		if errors.Is(err, entries.ErrEntryNotFound) {
			c.Error(apperrors.Wrap(apperrors.ErrEntryNotFound, err))
			return
		}
		c.Error(err)
		return
	}

	entry, _ := h.entries.Get(id)
	utils.SendSuccess(c, entry)
}

// DeleteEntry removes a config entry and its entities
func (h *Handlers) DeleteEntry(c *gin.Context) {
	id := c.Param("id")
	if err := h.entries.Remove(c.Request.Context(), id); err != nil {
		if errors.Is(err, entries.ErrEntryNotFound) {
			c.Error(apperrors.Wrap(apperrors.ErrEntryNotFound, err))
			return
		}
		c.Error(err)
		return
	}

	if err := h.entities.RemoveEntry(c.Request.Context(), id); err != nil {
		h.logger.WithError(err).WithField("entry_id", id).Warn("Failed to remove entry entities")
	}

	utils.SendSuccess(c, gin.H{"removed": id})
}
