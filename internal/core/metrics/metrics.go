package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the hub
type Metrics struct {
	RefreshTotal      *prometheus.CounterVec
	RefreshFailures   *prometheus.CounterVec
	EntitiesBySource  *prometheus.GaugeVec
	EntriesByState    *prometheus.GaugeVec
	WebhookDeliveries *prometheus.CounterVec
	ActionDuration    *prometheus.HistogramVec
	WebsocketClients  prometheus.Gauge
}

// New registers all collectors on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_coordinator_refresh_total",
			Help: "Coordinator refresh attempts by integration domain",
		}, []string{"domain"}),
		RefreshFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_coordinator_refresh_failures_total",
			Help: "Failed coordinator refreshes by integration domain",
		}, []string{"domain"}),
		EntitiesBySource: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "haven_entities",
			Help: "Registered entities by source",
		}, []string{"source"}),
		EntriesByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "haven_config_entries",
			Help: "Config entries by lifecycle state",
		}, []string{"state"}),
		WebhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_webhook_deliveries_total",
			Help: "Webhook payloads received by integration domain",
		}, []string{"domain", "status"}),
		ActionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "haven_action_duration_seconds",
			Help:    "Entity control action latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"domain"}),
		WebsocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "haven_websocket_clients",
			Help: "Connected websocket clients",
		}),
	}
}

// ObserveRefresh implements the coordinator refresh observer
func (m *Metrics) ObserveRefresh(domain string, success bool) {
	m.RefreshTotal.WithLabelValues(domain).Inc()
	if !success {
		m.RefreshFailures.WithLabelValues(domain).Inc()
	}
}
