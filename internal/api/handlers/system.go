package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/haven-automation/haven-hub/pkg/utils"
	"github.com/haven-automation/haven-hub/pkg/version"
)

// Health reports liveness plus a summary of the hub's state
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   version.GetVersion(),
		"uptime":    h.system.Uptime().String(),
		"entities":  h.entities.Count(),
		"entries":   len(h.entries.List()),
		"timestamp": time.Now().UTC(),
	})
}

// GetSystemInfo returns host metrics
func (h *Handlers) GetSystemInfo(c *gin.Context) {
	utils.SendSuccess(c, h.system.GetInfo(c.Request.Context()))
}

// GetStats returns hub statistics
func (h *Handlers) GetStats(c *gin.Context) {
	utils.SendSuccess(c, gin.H{
		"entities_by_source": h.entities.CountBySource(),
		"entity_count":       h.entities.Count(),
		"entry_count":        len(h.entries.List()),
		"webhook_count":      h.webhooks.Count(),
		"websocket":          h.wsHub.GetStats(),
		"build":              version.GetBuildInfo(),
	})
}

// GetAdapters reports health and metrics for every connected adapter
func (h *Handlers) GetAdapters(c *gin.Context) {
	adapters := h.adapters.GetAllAdapters()
	out := make([]gin.H, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, gin.H{
			"id":        a.GetID(),
			"source":    a.GetSourceType(),
			"name":      a.GetName(),
			"version":   a.GetVersion(),
			"connected": a.IsConnected(),
			"status":    a.GetStatus(),
			"health":    a.GetHealth(),
			"metrics":   a.GetMetrics(),
		})
	}
	utils.SendSuccessWithMeta(c, out, gin.H{"count": len(out)})
}

// GetBackups lists database backups
func (h *Handlers) GetBackups(c *gin.Context) {
	backups, err := h.backup.List()
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to list backups: "+err.Error())
		return
	}
	utils.SendSuccessWithMeta(c, backups, gin.H{"count": len(backups)})
}

// CreateBackup runs a backup immediately
func (h *Handlers) CreateBackup(c *gin.Context) {
	path, err := h.backup.BackupNow()
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Backup failed: "+err.Error())
		return
	}
	utils.SendCreated(c, gin.H{"path": path})
}
