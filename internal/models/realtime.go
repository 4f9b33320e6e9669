package models

import "encoding/json"

// Event names exchanged over the WebSocket.
const (
	EventUserOnline   = "user-online"         // client -> server
	EventHeartbeat    = "heartbeat"           // client -> server
	EventOnlineUsers  = "update-online-users" // server -> client
	EventUpdatedRoom  = "updatedRoom"         // server -> client
	EventMessageSeen  = "messageSeen"         // server -> client
	EventNotification = "notification"        // server -> client
)

// Event is an outbound named payload.
type Event struct {
	Name    string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// InboundEvent is a named payload whose body is decoded by the consumer.
type InboundEvent struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageSeen is the read receipt payload.
type MessageSeen struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	RoomID    string `json:"roomId"`
}

// NotificationRequest is how external collaborators ask for a notification.
type NotificationRequest struct {
	UserID  string `json:"userId" binding:"required"`
	Title   string `json:"title" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// Decode unmarshals the payload into v.
func (e InboundEvent) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
