package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/internal/config"
	"github.com/haven-automation/haven-hub/internal/core/backup"
	"github.com/haven-automation/haven-hub/internal/core/entities"
	"github.com/haven-automation/haven-hub/internal/core/entries"
	"github.com/haven-automation/haven-hub/internal/core/flow"
	"github.com/haven-automation/haven-hub/internal/core/metrics"
	"github.com/haven-automation/haven-hub/internal/core/system"
	"github.com/haven-automation/haven-hub/internal/core/types/registries"
	"github.com/haven-automation/haven-hub/internal/core/webhook"
	"github.com/haven-automation/haven-hub/internal/websocket"
)

// Handlers bundles the services the API surface exposes
type Handlers struct {
	cfg      *config.Config
	logger   *logrus.Logger
	entities *entities.Service
	entries  *entries.Manager
	flows    *flow.Manager
	adapters *registries.AdapterRegistry
	webhooks *webhook.Registry
	system   *system.Service
	backup   *backup.Service
	wsHub    *websocket.Hub
	metrics  *metrics.Metrics
}

// New creates the handler set
func New(
	cfg *config.Config,
	logger *logrus.Logger,
	entitySvc *entities.Service,
	entryMgr *entries.Manager,
	flowMgr *flow.Manager,
	adapterReg *registries.AdapterRegistry,
	webhookReg *webhook.Registry,
	systemSvc *system.Service,
	backupSvc *backup.Service,
	wsHub *websocket.Hub,
	m *metrics.Metrics,
) *Handlers {
	return &Handlers{
		cfg:      cfg,
		logger:   logger,
		entities: entitySvc,
		entries:  entryMgr,
		flows:    flowMgr,
		adapters: adapterReg,
		webhooks: webhookReg,
		system:   systemSvc,
		backup:   backupSvc,
		wsHub:    wsHub,
		metrics:  m,
	}
}
