package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/internal/config"
	"github.com/haven-automation/haven-hub/internal/core/types"
)

// Bridge mirrors entity state onto an MQTT broker. States are published
// retained so a broker restart or a late subscriber still sees the last
// known value. It plugs into the entity service as a state listener.
type Bridge struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	logger *logrus.Logger

	// announced is touched from every coordinator goroutine that pushes
	// state through the entity service
	mu        sync.Mutex
	announced map[string]bool
}

// NewBridge creates an MQTT bridge
func NewBridge(cfg config.MQTTConfig, logger *logrus.Logger) (*Bridge, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("haven-hub-%d", time.Now().Unix())
	}

	b := &Bridge{
		cfg:       cfg,
		logger:    logger,
		announced: make(map[string]bool),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetWill(b.topic("status"), "offline", 1, true)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
		client.Publish(b.topic("status"), 1, true, "online")
	})

	b.client = mqtt.NewClient(opts)
	return b, nil
}

// Connect establishes the broker connection
func (b *Bridge) Connect() error {
	token := b.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Close publishes the offline status and disconnects
func (b *Bridge) Close() {
	if b.client.IsConnected() {
		b.client.Publish(b.topic("status"), 1, true, "offline").Wait()
		b.client.Disconnect(250)
	}
}

// OnEntityState publishes the entity state, attributes and availability.
// Implements the entity service's state listener.
func (b *Bridge) OnEntityState(entity types.HavenEntity) {
	if !b.client.IsConnected() {
		return
	}

	id := sanitizeID(entity.GetID())

	if b.cfg.Discovery {
		b.mu.Lock()
		first := !b.announced[id]
		if first {
			b.announced[id] = true
		}
		b.mu.Unlock()
		if first {
			b.publishDiscovery(entity, id)
		}
	}

	b.publish(fmt.Sprintf("entity/%s/state", id), []byte(entity.GetState()))

	availability := "online"
	if !entity.IsAvailable() {
		availability = "offline"
	}
	b.publish(fmt.Sprintf("entity/%s/availability", id), []byte(availability))

	if attrs := entity.GetAttributes(); len(attrs) > 0 {
		if payload, err := json.Marshal(attrs); err == nil {
			b.publish(fmt.Sprintf("entity/%s/attributes", id), payload)
		}
	}
}

// OnEntityRemoved clears the retained topics for a removed entity
func (b *Bridge) OnEntityRemoved(entityID string) {
	if !b.client.IsConnected() {
		return
	}
	id := sanitizeID(entityID)
	b.publish(fmt.Sprintf("entity/%s/state", id), nil)
	b.publish(fmt.Sprintf("entity/%s/availability", id), nil)
	b.publish(fmt.Sprintf("entity/%s/attributes", id), nil)
	b.mu.Lock()
	delete(b.announced, id)
	b.mu.Unlock()
}

// publishDiscovery announces the entity with a retained discovery config so
// MQTT consumers can pick it up without manual topic wiring
func (b *Bridge) publishDiscovery(entity types.HavenEntity, id string) {
	cfg := map[string]interface{}{
		"name":                entity.GetFriendlyName(),
		"unique_id":           entity.GetID(),
		"state_topic":         b.topic(fmt.Sprintf("entity/%s/state", id)),
		"availability_topic":  b.topic(fmt.Sprintf("entity/%s/availability", id)),
		"json_attributes_topic": b.topic(fmt.Sprintf("entity/%s/attributes", id)),
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return
	}

	component := string(entity.GetType())
	topic := fmt.Sprintf("%s/discovery/%s/%s/config", b.cfg.TopicPrefix, component, id)
	token := b.client.Publish(topic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		b.logger.WithError(token.Error()).WithField("topic", topic).Warn("Failed to publish discovery config")
	}
}

func (b *Bridge) publish(suffix string, payload []byte) {
	topic := b.topic(suffix)
	token := b.client.Publish(topic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		b.logger.WithError(token.Error()).WithField("topic", topic).Warn("Failed to publish MQTT message")
	}
}

func (b *Bridge) topic(suffix string) string {
	return b.cfg.TopicPrefix + "/" + suffix
}

func sanitizeID(id string) string {
	replacer := strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_")
	return replacer.Replace(id)
}
