package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haven-automation/haven-hub/internal/core/webhook"
	apperrors "github.com/haven-automation/haven-hub/pkg/errors"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// HandleWebhook routes an inbound webhook payload to the integration that
// registered the ID. The ID itself is the credential, so unknown IDs get
// the same response shape as handler failures to avoid probing.
func (h *Handlers) HandleWebhook(c *gin.Context) {
	webhookID := c.Param("id")

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.Error(apperrors.Wrap(apperrors.ErrBadRequest, err))
		return
	}

	domain, err := h.webhooks.Handle(c.Request.Context(), webhookID, payload)
	if err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			h.metrics.WebhookDeliveries.WithLabelValues("unknown", "not_found").Inc()
			c.Error(apperrors.Wrap(apperrors.ErrWebhookNotFound, err))
			return
		}
		h.metrics.WebhookDeliveries.WithLabelValues(domain, "error").Inc()
		h.logger.WithError(err).WithField("domain", domain).Warn("Webhook handler failed")
		c.Error(apperrors.Wrap(apperrors.ErrBadRequest, err))
		return
	}

	h.metrics.WebhookDeliveries.WithLabelValues(domain, "ok").Inc()
	c.Status(http.StatusOK)
}
