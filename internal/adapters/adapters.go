package adapters

import (
	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/internal/config"
	"github.com/haven-automation/haven-hub/internal/core/dispatcher"
	"github.com/haven-automation/haven-hub/internal/core/entities"
	"github.com/haven-automation/haven-hub/internal/core/entries"
	"github.com/haven-automation/haven-hub/internal/core/flow"
	"github.com/haven-automation/haven-hub/internal/core/metrics"
	"github.com/haven-automation/haven-hub/internal/core/types/registries"
	"github.com/haven-automation/haven-hub/internal/core/webhook"
)

// Services is the dependency bundle handed to every integration. A domain
// registers its flow handler with Flows and its setup function with
// Entries; everything else is available during setup.
type Services struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Entities *entities.Service
	Entries  *entries.Manager
	Flows    *flow.Manager
	Adapters *registries.AdapterRegistry
	Webhooks *webhook.Registry
	Dispatch *dispatcher.Dispatcher
	Metrics  *metrics.Metrics
}
