package websocket

import (
	"encoding/json"
	"time"
)

// Message types for WebSocket communication
const (
	MessageTypeAlertTriggered    = "alert.triggered"
	MessageTypeAlertAcknowledged = "alert.acknowledged"
	MessageTypeAlertResolved     = "alert.resolved"
	MessageTypeAlertEscalated    = "alert.escalated"

	MessageTypeHealthSnapshot = "health.snapshot"

	MessageTypeConnectionStatus = "connection_status"
	MessageTypeHeartbeat        = "heartbeat"
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
