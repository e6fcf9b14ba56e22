package websocket

import (
	"encoding/json"
	"time"
)

// Message types pushed to clients
const (
	MessageTypeEntityStateChanged = "entity_state_changed"
	MessageTypeEntityRemoved      = "entity_removed"
	MessageTypeEntryStateChanged  = "entry_state_changed"
	MessageTypeFlowProgress       = "flow_progress"
	MessageTypeSystemStatus       = "system_status"
	MessageTypeConnection         = "connection"
	MessageTypeHeartbeat          = "heartbeat"
)

// Message represents a WebSocket message
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() []byte {
	m.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(m)
	return data
}

// EntityStateChangedMessage creates a message for entity state changes
func EntityStateChangedMessage(entityID, source, state string, available bool, attributes map[string]interface{}) Message {
	return Message{
		Type: MessageTypeEntityStateChanged,
		Data: map[string]interface{}{
			"entity_id":  entityID,
			"source":     source,
			"state":      state,
			"available":  available,
			"attributes": attributes,
		},
	}
}

// EntityRemovedMessage creates a message for entity removal
func EntityRemovedMessage(entityID string) Message {
	return Message{
		Type: MessageTypeEntityRemoved,
		Data: map[string]interface{}{
			"entity_id": entityID,
		},
	}
}

// EntryStateChangedMessage creates a message for config entry lifecycle
// transitions
func EntryStateChangedMessage(entryID, domain, state, reason string) Message {
	return Message{
		Type: MessageTypeEntryStateChanged,
		Data: map[string]interface{}{
			"entry_id": entryID,
			"domain":   domain,
			"state":    state,
			"reason":   reason,
		},
	}
}

// FlowProgressMessage creates a message for config-flow progress so UI
// clients can follow a flow they did not drive themselves
func FlowProgressMessage(flowID, resultType, stepID string) Message {
	return Message{
		Type: MessageTypeFlowProgress,
		Data: map[string]interface{}{
			"flow_id": flowID,
			"result":  resultType,
			"step_id": stepID,
		},
	}
}

// SystemStatusMessage creates a message for system status updates
func SystemStatusMessage(status string, details map[string]interface{}) Message {
	return Message{
		Type: MessageTypeSystemStatus,
		Data: map[string]interface{}{
			"status":  status,
			"details": details,
		},
	}
}
