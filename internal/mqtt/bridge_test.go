package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/haven-automation/haven-hub/internal/config"
	"github.com/haven-automation/haven-hub/internal/core/types"
)

type recordedToken struct{}

func (recordedToken) Wait() bool                     { return true }
func (recordedToken) WaitTimeout(time.Duration) bool { return true }
func (recordedToken) Error() error                   { return nil }
func (recordedToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// recordingClient counts publishes per topic. Embedding the interface keeps
// the stub small; only the methods the bridge calls are implemented.
type recordingClient struct {
	mqtt.Client
	published sync.Map
}

func (c *recordingClient) IsConnected() bool { return true }

func (c *recordingClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	count, _ := c.published.LoadOrStore(topic, new(int64))
	atomic.AddInt64(count.(*int64), 1)
	return recordedToken{}
}

func (c *recordingClient) publishCount(topic string) int64 {
	count, ok := c.published.Load(topic)
	if !ok {
		return 0
	}
	return atomic.LoadInt64(count.(*int64))
}

func testBridge() (*Bridge, *recordingClient) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	client := &recordingClient{}
	return &Bridge{
		cfg:       config.MQTTConfig{TopicPrefix: "haven", Discovery: true},
		client:    client,
		logger:    log,
		announced: make(map[string]bool),
	}, client
}

func testEntity(id string, available bool) types.HavenEntity {
	return &types.HavenBaseEntity{
		ID:           id,
		Type:         types.EntityTypeSensor,
		FriendlyName: id,
		State:        types.StateActive,
		LastUpdated:  time.Now(),
		Available:    available,
		Metadata: &types.HavenMetadata{
			Source:  types.SourceHaven,
			EntryID: "entry-1",
		},
	}
}

func TestOnEntityStatePublishesDiscoveryOnce(t *testing.T) {
	bridge, client := testBridge()

	entity := testEntity("sensor.hall_temperature", true)
	bridge.OnEntityState(entity)
	bridge.OnEntityState(entity)
	bridge.OnEntityState(entity)

	discovery := "haven/discovery/sensor/sensor.hall_temperature/config"
	assert.EqualValues(t, 1, client.publishCount(discovery))
	assert.EqualValues(t, 3, client.publishCount("haven/entity/sensor.hall_temperature/state"))
	assert.EqualValues(t, 3, client.publishCount("haven/entity/sensor.hall_temperature/availability"))
}

func TestOnEntityRemovedReannounces(t *testing.T) {
	bridge, client := testBridge()

	entity := testEntity("sensor.hall_temperature", true)
	bridge.OnEntityState(entity)
	bridge.OnEntityRemoved("sensor.hall_temperature")
	bridge.OnEntityState(entity)

	discovery := "haven/discovery/sensor/sensor.hall_temperature/config"
	assert.EqualValues(t, 2, client.publishCount(discovery))
}

// Listeners run on every coordinator's own goroutine, so state and removal
// callbacks arrive concurrently once more than one entry is loaded.
func TestBridgeCallbacksAreConcurrencySafe(t *testing.T) {
	bridge, _ := testBridge()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("sensor.zone_%d", i%10)
				bridge.OnEntityState(testEntity(id, i%3 != 0))
				if i%4 == 0 {
					bridge.OnEntityRemoved(id)
				}
			}
		}(g)
	}
	wg.Wait()
}
