package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageToJSONStampsTimestamp(t *testing.T) {
	msg := Message{
		Type: MessageTypeSystemStatus,
		Data: map[string]interface{}{"status": "ok"},
	}

	var decoded Message
	require.NoError(t, json.Unmarshal(msg.ToJSON(), &decoded))
	assert.Equal(t, MessageTypeSystemStatus, decoded.Type)
	assert.Equal(t, "ok", decoded.Data["status"])
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestEntityStateChangedMessage(t *testing.T) {
	msg := EntityStateChangedMessage("sensor.monitor_uptime", "uptimerobot", "active", true,
		map[string]interface{}{"uptime_ratio": 99.95})

	assert.Equal(t, MessageTypeEntityStateChanged, msg.Type)
	assert.Equal(t, "sensor.monitor_uptime", msg.Data["entity_id"])
	assert.Equal(t, "uptimerobot", msg.Data["source"])
	assert.Equal(t, "active", msg.Data["state"])
	assert.Equal(t, true, msg.Data["available"])
}

func TestEntryStateChangedMessage(t *testing.T) {
	msg := EntryStateChangedMessage("entry-1", "elmax", "setup_retry", "panel offline")

	assert.Equal(t, MessageTypeEntryStateChanged, msg.Type)
	assert.Equal(t, "entry-1", msg.Data["entry_id"])
	assert.Equal(t, "elmax", msg.Data["domain"])
	assert.Equal(t, "setup_retry", msg.Data["state"])
	assert.Equal(t, "panel offline", msg.Data["reason"])
}

func TestEntityRemovedMessage(t *testing.T) {
	msg := EntityRemovedMessage("cover.blind_3")
	assert.Equal(t, MessageTypeEntityRemoved, msg.Type)
	assert.Equal(t, "cover.blind_3", msg.Data["entity_id"])
}
